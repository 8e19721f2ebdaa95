package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/microsoft/trident/internal/datastore"
	"github.com/microsoft/trident/internal/engine"
)

func dialServer(t *testing.T, srv ServicingServer) (ServicingClient, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	RegisterServicingServer(gs, srv)
	go gs.Serve(lis)

	conn, err := grpc.NewClient("passthrough:bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		DialOption(),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	return NewServicingClient(conn), func() {
		conn.Close()
		gs.Stop()
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ds, err := datastore.Open(filepath.Join(t.TempDir(), "trident.db"), false)
	if err != nil {
		t.Fatalf("failed to open datastore: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	return &Server{Engine: &engine.Engine{Datastore: ds}}
}

func TestInstall_StageNotAllowedReturnsDoneWithoutError(t *testing.T) {
	client, closeFn := dialServer(t, newTestServer(t))
	defer closeFn()

	resp, err := client.Install(context.Background(), &InstallRequest{
		HostConfigurationYAML: []byte("storage:\n  disks: []\n"),
		Stage:                 false,
		Finalize:              false,
	})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected operation error: %s", resp.Error)
	}
	if resp.ExitKind != string(engine.ExitDone) {
		t.Fatalf("expected exit kind %q, got %q", engine.ExitDone, resp.ExitKind)
	}
}

func TestInstall_InvalidYAMLSurfacesAsOperationError(t *testing.T) {
	client, closeFn := dialServer(t, newTestServer(t))
	defer closeFn()

	resp, err := client.Install(context.Background(), &InstallRequest{
		HostConfigurationYAML: []byte("not: [valid"),
	})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected an operation error for malformed YAML")
	}
}

func TestGetStatus_PushesCurrentSnapshotImmediately(t *testing.T) {
	client, closeFn := dialServer(t, newTestServer(t))
	defer closeFn()

	stream, err := client.GetStatus(context.Background(), &GetStatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}

	update, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(update.HostStatusJSON) == 0 {
		t.Fatal("expected a non-empty HostStatus snapshot")
	}
}
