// Package encryption drives the LUKS2 create/reencrypt, TPM enrollment, and
// open sequence for every declared encrypted volume, sealed either against
// a pcrlock policy (UKI targets) or a raw PCR selector (grub targets).
package encryption

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/microsoft/trident/internal/adapter"
	"github.com/microsoft/trident/internal/config"
	trerrors "github.com/microsoft/trident/internal/errors"
	"github.com/microsoft/trident/internal/graph"
	"github.com/microsoft/trident/internal/resource"
	"github.com/microsoft/trident/internal/status"
	"github.com/microsoft/trident/internal/storage/encryption/pcrlock"
)

// Type distinguishes a fresh LUKS2 format from an in-place reencryption.
type Type string

const (
	TypeLuksFormat Type = "luks-format"
	TypeReencrypt  Type = "reencrypt"
)

// KeyFile describes the resolved key-file used to unlock every encrypted
// volume in a single run. guard is nil for a caller-supplied RecoveryKeyURL,
// where there is nothing generated to clean up.
type KeyFile struct {
	Path          string
	AutoGenerated bool
	guard         *resource.Guard
}

// Provisioner drives the encrypted-volume pipeline.
type Provisioner struct {
	TPM        adapter.Tpm2Runner
	Cryptsetup adapter.CryptsetupRunner
	Pcrlock    adapter.PcrlockRunner
	IsUKI      bool
	Runtime    pcrlock.RuntimeType

	// HTTPTimeoutSeconds is set to 10 by NewProvisioner. Provision does not
	// read it: a RecoveryKeyURL is passed to cryptsetup as the key-file path
	// unchanged, and nothing is fetched over HTTP.
	HTTPTimeoutSeconds uint16

	// CreateTempFile is overridable for tests.
	CreateTempFile func() (path string, cleanup func(), err error)
}

// NewProvisioner builds a Provisioner with the real temp-file helper.
func NewProvisioner(tpm adapter.Tpm2Runner, cryptsetup adapter.CryptsetupRunner, pcr adapter.PcrlockRunner, isUKI bool) *Provisioner {
	return &Provisioner{
		TPM: tpm, Cryptsetup: cryptsetup, Pcrlock: pcr, IsUKI: isUKI,
		HTTPTimeoutSeconds: config.DefaultHTTPConnectionTimeoutSeconds,
		CreateTempFile:     defaultCreateTempFile,
	}
}

func defaultCreateTempFile() (string, func(), error) {
	f, err := os.CreateTemp("", "trident-recovery-key-*")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	f.Close()
	return path, func() { os.Remove(path) }, nil
}

// Provision runs the full LUKS2/TPM provisioning pipeline for every declared
// encrypted volume, recording the mapped device paths into hs.
func (p *Provisioner) Provision(ctx context.Context, g *graph.Graph, hc *config.HostConfiguration, hs *status.HostStatus) error {
	enc := hc.Encryption
	if enc == nil {
		return nil
	}

	if err := p.probeTPM(ctx); err != nil {
		return err
	}
	if hc.InternalParams.GetFlag(config.ParamClearTPMOnInstall) || enc.ClearTPMOnInstall {
		if err := p.TPM.Clear(ctx); err != nil {
			return trerrors.ExecutionEnvironment("failed to clear TPM 2.0 device", err)
		}
	}

	keyFile, err := p.resolveKeyFile(enc)
	if err != nil {
		return err
	}
	defer keyFile.guard.Release()

	policyPath, pcrSelector, err := p.selectPolicy(ctx, enc)
	if err != nil {
		return err
	}

	encType := TypeLuksFormat
	if hc.InternalParams.GetFlag(config.ParamReencryptOnCleanInstall) {
		encType = TypeReencrypt
	}

	var totalSize uint64
	for _, ev := range enc.Volumes {
		backingPath, size, err := resolveBackingDevice(g, hs, ev.DeviceID)
		if err != nil {
			return err
		}
		totalSize += size

		log.WithFields(log.Fields{
			"volume":  ev.ID,
			"backing": backingPath,
			"mapped":  ev.MappedName,
		}).Debug("provisioning encrypted volume")

		if encType == TypeReencrypt {
			if err := p.Cryptsetup.Reencrypt(ctx, backingPath, keyFile.Path); err != nil {
				return trerrors.Servicing(fmt.Sprintf("failed to reencrypt '%s'", backingPath), err)
			}
		} else {
			if err := p.Cryptsetup.Format(ctx, backingPath, keyFile.Path); err != nil {
				return trerrors.Servicing(fmt.Sprintf("failed to format '%s' as LUKS2", backingPath), err)
			}
		}

		if err := p.Cryptsetup.EnrollTPM(ctx, backingPath, pcrSelector, policyPath); err != nil {
			return trerrors.Servicing(fmt.Sprintf("failed to enroll TPM for '%s'", backingPath), err)
		}

		if err := p.Cryptsetup.Open(ctx, backingPath, ev.MappedName, keyFile.Path); err != nil {
			return trerrors.Servicing(fmt.Sprintf("failed to open encrypted volume '%s'", ev.MappedName), err)
		}

		if keyFile.AutoGenerated {
			if err := p.Cryptsetup.WipeSlot(ctx, backingPath, 1); err != nil {
				return trerrors.Servicing(fmt.Sprintf("failed to wipe password slot on '%s'", backingPath), err)
			}
		}

		if hs.BlockDevicePaths == nil {
			hs.BlockDevicePaths = map[config.BlockDeviceID]status.BlockDevicePath{}
		}
		hs.BlockDevicePaths[ev.ID] = status.BlockDevicePath{
			Path: "/dev/mapper/" + ev.MappedName, SizeBytes: size, Initialization: status.InitializationUnknown,
		}
	}

	log.WithField("totalPartitionSizeBytes", totalSize).Debug("encrypted volume provisioning complete")
	return nil
}

func (p *Provisioner) probeTPM(ctx context.Context) error {
	if err := p.TPM.PCRRead(ctx, 0); err != nil {
		return trerrors.ExecutionEnvironment("encryption requires access to a TPM 2.0 device but one is not accessible", err)
	}
	return nil
}

func (p *Provisioner) resolveKeyFile(enc *config.Encryption) (KeyFile, error) {
	if enc.RecoveryKeyURL != "" {
		return KeyFile{Path: enc.RecoveryKeyURL, AutoGenerated: false}, nil
	}

	path, cleanup, err := p.CreateTempFile()
	if err != nil {
		return KeyFile{}, trerrors.Servicing("failed to create recovery key file", err)
	}
	guard, err := resource.Acquire("recovery-key-file:"+path, func() (func() error, error) {
		return func() error { cleanup(); return nil }, nil
	})
	if err != nil {
		cleanup()
		return KeyFile{}, trerrors.Servicing("failed to guard recovery key file", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		guard.Release()
		return KeyFile{}, trerrors.Servicing("failed to set recovery key file permissions", err)
	}
	if err := generateRecoveryKey(path); err != nil {
		guard.Release()
		return KeyFile{}, trerrors.Servicing("failed to generate recovery key", err)
	}
	return KeyFile{Path: path, AutoGenerated: true, guard: guard}, nil
}

func generateRecoveryKey(path string) error {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	return os.WriteFile(path, []byte(encoded), 0o600)
}

// selectPolicy chooses what the LUKS2 volume is sealed against: UKI targets
// seal against a bootstrap pcrlock policy of PCR 0 only (the richer policy
// is produced later, once the PCR-lock policy builder runs); grub targets
// seal against the raw PCR selector from the configuration.
func (p *Provisioner) selectPolicy(ctx context.Context, enc *config.Encryption) (policyPath string, pcrs []uint8, err error) {
	if p.IsUKI {
		if err := p.Pcrlock.RemovePolicy(ctx); err != nil {
			return "", nil, trerrors.Servicing("failed to remove pre-existing pcrlock policy", err)
		}
		if err := p.Pcrlock.GeneratePolicy(ctx, []uint8{pcrlock.PCR0}, nil, nil); err != nil {
			return "", nil, trerrors.Servicing("failed to generate bootstrap pcrlock policy", err)
		}
		return "pcrlock-bootstrap", nil, nil
	}
	return "", enc.PCRs, nil
}

// resolveBackingDevice resolves the block device backing an encrypted
// volume: a partition directly, or the first partition of a RAID array.
func resolveBackingDevice(g *graph.Graph, hs *status.HostStatus, deviceID config.BlockDeviceID) (path string, sizeBytes uint64, err error) {
	n := g.Node(deviceID)
	if n == nil {
		return "", 0, trerrors.Internal(fmt.Sprintf("encrypted volume backing device '%s' not found in graph", deviceID))
	}

	resolvedID := deviceID
	switch n.Kind {
	case graph.KindPartition:
		// use directly
	case graph.KindRaidArray:
		if len(n.Targets) == 0 {
			return "", 0, trerrors.InvalidInputf("RAID array '%s' has no members to back encrypted volume", deviceID)
		}
		resolvedID = n.Targets[0]
	default:
		return "", 0, trerrors.InvalidInputf(
			"encrypted volume backing device '%s' must be a partition or a RAID array", deviceID)
	}

	bp, ok := hs.BlockDevicePaths[resolvedID]
	if !ok {
		return "", 0, trerrors.Internal(fmt.Sprintf("block device '%s' has no resolved path yet", resolvedID))
	}
	return bp.Path, bp.SizeBytes, nil
}
