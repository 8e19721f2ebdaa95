package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/microsoft/trident/internal/adapter/execrunner"
	"github.com/microsoft/trident/internal/boot"
	"github.com/microsoft/trident/internal/datastore"
	"github.com/microsoft/trident/internal/engine"
	"github.com/microsoft/trident/internal/storage/encryption"
	"github.com/microsoft/trident/internal/storage/encryption/pcrlock"
	"github.com/microsoft/trident/internal/storage/partition"
	"github.com/microsoft/trident/internal/storage/raid"
)

// buildEngine wires the real, os/exec-backed adapters into every storage
// collaborator and opens the on-disk datastore, the same assembly a real
// deployment's systemd unit would perform at startup.
func buildEngine() (*engine.Engine, func(), error) {
	if err := os.MkdirAll(filepath.Dir(datastorePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create datastore directory: %w", err)
	}

	ds, err := datastore.Open(datastorePath, multiboot)
	if err != nil {
		return nil, nil, fmt.Errorf("open datastore %s: %w", datastorePath, err)
	}

	runtime := pcrlock.RuntimeTypeHost
	provisioner := encryption.NewProvisioner(
		execrunner.Tpm2Runner{},
		execrunner.CryptsetupRunner{},
		execrunner.PcrlockRunner{},
		isUKI,
	)
	provisioner.Runtime = runtime

	e := &engine.Engine{
		Datastore:  ds,
		Partition:  partition.NewPlanner(execrunner.BlkidRunner{}, execrunner.RepartRunner{}, execrunner.UdevRunner{}),
		Raid:       raid.NewAssembler(execrunner.RaidRunner{}),
		Encryption: provisioner,
		Boot:       boot.NewManager(execrunner.EfibootmgrRunner{}, fileExists, filepath.Join(espRoot, "loader", "entries.conf")),
		IsUKI:      isUKI,
		ESPRoot:    espRoot,
	}

	return e, func() { ds.Close() }, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
