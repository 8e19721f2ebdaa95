// Package datastore implements the Datastore: an append-only, crash-safe
// log of HostStatus records backing every servicing operation.
package datastore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sys/unix"

	trerrors "github.com/microsoft/trident/internal/errors"
	"github.com/microsoft/trident/internal/status"
)

var bucketHostStatusLog = []byte("host_status_log")

// Datastore is the append-only HostStatus log
type Datastore struct {
	db   *bolt.DB
	lock *os.File
}

// Open opens (creating if absent) the datastore at path. If the store
// already holds a provisioned HostStatus and multiboot is false, Open
// rejects a clean-install attempt on an already-provisioned host.
//
// Open also takes a process-wide advisory lock on "<path>.lock" for the
// lifetime of the returned Datastore, so only one servicing operation runs
// against a given datastore at a time; a second Open against the same path
// while the first is still held fails immediately rather than blocking.
func Open(path string, multiboot bool) (*Datastore, error) {
	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		releaseLock(lock)
		return nil, trerrors.ExecutionEnvironment(fmt.Sprintf("failed to open datastore '%s'", path), err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketHostStatusLog)
			return err
	}); err != nil {
		db.Close()
		releaseLock(lock)
		return nil, trerrors.Internal(fmt.Sprintf("failed to initialize datastore bucket in '%s'", path))
	}

	ds := &Datastore{db: db, lock: lock}

	if !multiboot {
		latest, ok, err := ds.latest()
		if err != nil {
			ds.Close()
			return nil, err
		}
		if ok && latest.ServicingState != status.ServicingStateNotProvisioned {
			ds.Close()
			return nil, trerrors.InvalidInput(
				"refusing clean install: datastore already holds a provisioned host status and multiboot is not enabled")
		}
	}

	return ds, nil
}

// acquireLock takes a non-blocking exclusive flock on "<path>.lock",
// serializing servicing operations against a single datastore the way
// spec §5 requires.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, trerrors.ExecutionEnvironment(fmt.Sprintf("failed to open datastore lock file for '%s'", path), err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, trerrors.InvalidInput(fmt.Sprintf("datastore '%s' is locked by another process", path))
	}
	return f, nil
}

func releaseLock(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}

// Close closes the underlying database and releases the process-wide lock.
func (d *Datastore) Close() error {
	err := d.db.Close()
	if d.lock != nil {
		releaseLock(d.lock)
	}
	return err
}

// WithHostStatus runs mutator against the latest HostStatus (or a
// NotProvisioned one if the log is empty) and appends the result atomically
// inside a single bbolt write transaction, so a process crash mid-mutation
// never leaves a partially-written record
func (d *Datastore) WithHostStatus(mutator func(*status.HostStatus) error) error {
	return d.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketHostStatusLog)

			hs, err := latestInTx(b)
			if err != nil {
				return err
			}

			if err := mutator(&hs); err != nil {
				return err
			}

			data, err := json.Marshal(hs)
			if err != nil {
				return trerrors.Wrap(err, "failed to marshal host status")
			}

			seq, err := b.NextSequence()
			if err != nil {
				return trerrors.Wrap(err, "failed to allocate datastore sequence number")
			}

			return b.Put(sequenceKey(seq), data)
	})
}

// HostStatus returns the most recently appended HostStatus, or a
// NotProvisioned one if the log is empty.
func (d *Datastore) HostStatus() (status.HostStatus, error) {
	hs, _, err := d.latest()
	return hs, err
}

// GetHostStatuses returns every HostStatus ever appended, oldest first; the
// rollback-history analyzer walks this list looking for a prior good state.
func (d *Datastore) GetHostStatuses() ([]status.HostStatus, error) {
	var out []status.HostStatus
	err := d.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketHostStatusLog)
			return b.ForEach(func(_, v []byte) error {
					var hs status.HostStatus
					if err := json.Unmarshal(v, &hs); err != nil {
						return trerrors.Wrap(err, "failed to unmarshal host status record")
					}
					out = append(out, hs)
					return nil
			})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Datastore) latest() (status.HostStatus, bool, error) {
	var hs status.HostStatus
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketHostStatusLog)
			k, v := b.Cursor().Last()
			if k == nil {
				hs.ServicingState = status.ServicingStateNotProvisioned
				return nil
			}
			found = true
			return json.Unmarshal(v, &hs)
	})
	if err != nil {
		return status.HostStatus{}, false, trerrors.Wrap(err, "failed to read latest host status")
	}
	return hs, found, nil
}

func latestInTx(b *bolt.Bucket) (status.HostStatus, error) {
	var hs status.HostStatus
	k, v := b.Cursor().Last()
	if k == nil {
		return status.HostStatus{ServicingState: status.ServicingStateNotProvisioned}, nil
	}
	if err := json.Unmarshal(v, &hs); err != nil {
		return status.HostStatus{}, trerrors.Wrap(err, "failed to unmarshal host status record")
	}
	return hs, nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
