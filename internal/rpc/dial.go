package rpc

import "google.golang.org/grpc"

// DialOption returns the grpc.DialOption that makes a ClientConn default
// every call to this package's JSON codec, so callers don't need to repeat
// grpc.CallContentSubtype(codecName) at every call site.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName))
}
