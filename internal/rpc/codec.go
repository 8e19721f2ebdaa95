// Package rpc exposes the servicing core over gRPC: Install, Update, Commit,
// and Rollback as unary calls, and GetStatus as a server-streaming call that
// pushes a HostStatus snapshot on every servicing-state transition. Wire
// messages are plain JSON rather than protobuf-generated structs, since no
// protoc-backed codegen runs as part of building this core; a JSON
// encoding.Codec carries them across the same grpc.Server and
// grpc.ClientConn plumbing a protobuf service would use.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements encoding.Codec over plain Go structs, so the service
// methods below can be registered on a *grpc.Server without a .pb.go file.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
