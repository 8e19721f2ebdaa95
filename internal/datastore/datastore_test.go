package datastore

import (
	"path/filepath"
	"testing"

	"github.com/microsoft/trident/internal/status"
)

func openTemp(t *testing.T, multiboot bool) *Datastore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trident.db")
	ds, err := Open(path, multiboot)
	if err != nil {
		t.Fatalf("unexpected error opening datastore: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestOpen_EmptyLogStartsNotProvisioned(t *testing.T) {
	ds := openTemp(t, false)
	hs, err := ds.HostStatus()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hs.ServicingState != status.ServicingStateNotProvisioned {
		t.Fatalf("expected not-provisioned, got %s", hs.ServicingState)
	}
}

func TestWithHostStatus_AppendsAtomically(t *testing.T) {
	ds := openTemp(t, false)

	err := ds.WithHostStatus(func(hs *status.HostStatus) error {
		hs.ServicingState = status.ServicingStateCleanInstallStaged
		hs.InstallIndex = 1
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = ds.WithHostStatus(func(hs *status.HostStatus) error {
		hs.ServicingState = status.ServicingStateProvisioned
		hs.InstallIndex++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hs, err := ds.HostStatus()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hs.ServicingState != status.ServicingStateProvisioned || hs.InstallIndex != 2 {
		t.Fatalf("expected provisioned/2, got %s/%d", hs.ServicingState, hs.InstallIndex)
	}

	all, err := ds.GetHostStatuses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records in the log, got %d", len(all))
	}
}

func TestWithHostStatus_MutatorErrorDoesNotAppend(t *testing.T) {
	ds := openTemp(t, false)

	sentinel := ds.WithHostStatus(func(hs *status.HostStatus) error {
		return errBoom
	})
	if sentinel == nil {
		t.Fatal("expected mutator error to propagate")
	}

	all, err := ds.GetHostStatuses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no records appended on mutator failure, got %d", len(all))
	}
}

func TestOpen_RejectsCleanInstallOnProvisionedHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trident.db")

	ds, err := Open(path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ds.WithHostStatus(func(hs *status.HostStatus) error {
		hs.ServicingState = status.ServicingStateProvisioned
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ds.Close()

	if _, err := Open(path, false); err == nil {
		t.Fatal("expected reopening a provisioned datastore without multiboot to fail")
	}

	ds2, err := Open(path, true)
	if err != nil {
		t.Fatalf("expected multiboot to permit reopening a provisioned datastore: %v", err)
	}
	ds2.Close()
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}
