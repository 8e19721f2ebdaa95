// Package boot implements the Boot-Entry Manager: parsing
// efibootmgr's textual output into a typed view, and driving UEFI boot
// variable mutations (BootNext, BootOrder, Boot#### entries, and — in UKI
// mode — the LoaderEntries selector) through the same view.
package boot

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/microsoft/trident/internal/adapter"
	trerrors "github.com/microsoft/trident/internal/errors"
)

// Entry is a single UEFI boot variable entry.
type Entry struct {
	ID string
	Label string
}

// Output is the parsed form of `efibootmgr`'s output.
type Output struct {
	BootNext string
	BootCurrent string
	BootOrder []string
	Entries []Entry
}

var entryLine = regexp.MustCompile(`^Boot([0-9a-fA-F]{4})(\*?) ([^\t]+)\t?`)

// ParseEfibootmgrOutput parses the textual output of `efibootmgr -v` with a
// line-oriented scan: BootNext/BootCurrent/BootOrder are read as "key: value"
// header lines, and every remaining "Boot####" line is matched against
// entryLine to recover its id and label.
func ParseEfibootmgrOutput(output string) (Output, error) {
	var out Output

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
			case strings.HasPrefix(trimmed, "BootCurrent:"),
			strings.HasPrefix(trimmed, "BootNext:"),
			strings.HasPrefix(trimmed, "BootOrder:"):
			parts := strings.SplitN(trimmed, ":", 2)
			if len(parts) != 2 {
				return Output{}, trerrors.InvalidInputf("error splitting efibootmgr output line '%s'", line)
			}
			key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			switch key {
			case "BootNext":
				out.BootNext = value
			case "BootCurrent":
				out.BootCurrent = value
			case "BootOrder":
				for _, id := range strings.Split(value, ",") {
					out.BootOrder = append(out.BootOrder, strings.TrimSpace(id))
				}
			}
		case strings.HasPrefix(trimmed, "Boot"):
			m := entryLine.FindStringSubmatch(trimmed)
			if m == nil {
				return Output{}, trerrors.InvalidInputf("error splitting efibootmgr output line '%s'", line)
			}
			out.Entries = append(out.Entries, Entry{ID: m[1], Label: strings.TrimSpace(m[3])})
		}
	}

	return out, nil
}

// String re-emits Output in efibootmgr's own textual format. Parsing this
// output with ParseEfibootmgrOutput reproduces the same Output.
func (o Output) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "BootCurrent: %s\n", o.BootCurrent)
	fmt.Fprintf(&b, "BootNext: %s\n", o.BootNext)
	fmt.Fprintf(&b, "BootOrder: %s\n", strings.Join(o.BootOrder, ","))
	for _, e := range o.Entries {
		fmt.Fprintf(&b, "Boot%s* %s\n", e.ID, e.Label)
	}
	return b.String()
}

// Exists reports whether an entry with label exists.
func (o Output) Exists(label string) bool {
	for _, e := range o.Entries {
		if e.Label == label {
			return true
		}
	}
	return false
}

// EntryNumber returns the id of the first entry with label.
func (o Output) EntryNumber(label string) (string, bool) {
	for _, e := range o.Entries {
		if e.Label == label {
			return e.ID, true
		}
	}
	return "", false
}

// EntriesWithLabel returns the ids of every entry with label, in Output
// order.
func (o Output) EntriesWithLabel(label string) []string {
	var ids []string
	for _, e := range o.Entries {
		if e.Label == label {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// IsCurrent reports whether id is the currently-booted entry.
func (o Output) IsCurrent(id string) bool {
	return o.BootCurrent == id
}

// Manager drives UEFI boot-variable mutations behind adapter.EfibootmgrRunner.
type Manager struct {
	Runner adapter.EfibootmgrRunner

	// Exists checks for the presence of a file on disk; overridable for
	// tests, defaults to os.Stat-backed behavior via NewManager.
	Exists func(path string) bool

	// LoaderEntriesPath is the path of the UKI loader.conf-style selector
	// file read and written by ReadLoaderEntriesFile/WriteLoaderEntriesFile
	// in UKI boot mode. Overridable for tests.
	LoaderEntriesPath string
	ReadFile func(path string) ([]byte, error)
	WriteFile func(path string, data []byte) error
}

// NewManager builds a Manager with the real filesystem existence check and
// loader-entries file I/O rooted at loaderEntriesPath.
func NewManager(runner adapter.EfibootmgrRunner, exists func(path string) bool, loaderEntriesPath string) *Manager {
	return &Manager{
		Runner: runner,
		Exists: exists,
		LoaderEntriesPath: loaderEntriesPath,
		ReadFile: func(path string) ([]byte, error) { return os.ReadFile(path) },
		WriteFile: func(path string, data []byte) error { return os.WriteFile(path, data, 0o644) },
	}
}

// ReadLoaderEntriesFile reads the raw contents of LoaderEntriesPath.
func (m *Manager) ReadLoaderEntriesFile(ctx context.Context) ([]byte, error) {
	raw, err := m.ReadFile(m.LoaderEntriesPath)
	if err != nil {
		return nil, trerrors.ExecutionEnvironment(
			fmt.Sprintf("failed to read loader entries file '%s'", m.LoaderEntriesPath), err)
	}
	return raw, nil
}

// WriteLoaderEntriesFile overwrites LoaderEntriesPath with data.
func (m *Manager) WriteLoaderEntriesFile(ctx context.Context, data []byte) error {
	if err := m.WriteFile(m.LoaderEntriesPath, data); err != nil {
		return trerrors.ExecutionEnvironment(
			fmt.Sprintf("failed to write loader entries file '%s'", m.LoaderEntriesPath), err)
	}
	return nil
}

func (m *Manager) list(ctx context.Context) (Output, error) {
	raw, err := m.Runner.List(ctx)
	if err != nil {
		return Output{}, trerrors.Servicing("efibootmgr exited with an error", err)
	}
	return ParseEfibootmgrOutput(raw)
}

// Create adds a boot entry, failing if an entry with the same label already
// exists or the bootloader path is not present under espRoot.
func (m *Manager) Create(ctx context.Context, label, diskPath, espRoot, loaderRelPath string, partitionNumber int) error {
	fullLoaderPath := joinRelative(espRoot, loaderRelPath)
	if m.Exists != nil && !m.Exists(fullLoaderPath) {
		return trerrors.InvalidInputf("bootloader path '%s' does not exist", fullLoaderPath)
	}

	existing, err := m.list(ctx)
	if err != nil {
		return err
	}
	if existing.Exists(label) {
		return trerrors.InvalidInputf("boot entry with the same label '%s' already exists in efibootmgr", label)
	}

	log.WithFields(log.Fields{"label": label, "disk": diskPath, "loader": loaderRelPath}).Debug("creating boot entry")
	if err := m.Runner.Create(ctx, label, diskPath, loaderRelPath, partitionNumber); err != nil {
		return trerrors.Servicing(fmt.Sprintf("failed to create boot entry '%s'", label), err)
	}
	return nil
}

// SetBootNext sets the BootNext variable to id.
func (m *Manager) SetBootNext(ctx context.Context, id string) error {
	if err := m.Runner.SetBootNext(ctx, id); err != nil {
		return trerrors.Servicing("failed to set BootNext", err)
	}
	return nil
}

// DeleteBootNext clears the BootNext variable.
func (m *Manager) DeleteBootNext(ctx context.Context) error {
	if err := m.Runner.DeleteBootNext(ctx); err != nil {
		return trerrors.Servicing("failed to delete BootNext", err)
	}
	return nil
}

// ModifyBootOrder sets BootOrder to order.
func (m *Manager) ModifyBootOrder(ctx context.Context, order []string) error {
	if err := m.Runner.ModifyBootOrder(ctx, order); err != nil {
		return trerrors.Servicing("failed to set BootOrder", err)
	}
	return nil
}

// DeleteEntry removes the entry with id.
func (m *Manager) DeleteEntry(ctx context.Context, id string) error {
	if err := m.Runner.DeleteEntry(ctx, id); err != nil {
		return trerrors.Servicing(fmt.Sprintf("failed to delete boot entry %s", id), err)
	}
	return nil
}

// DeleteEntriesWithLabel deletes every entry sharing label.
func (m *Manager) DeleteEntriesWithLabel(ctx context.Context, label string) error {
	out, err := m.list(ctx)
	if err != nil {
		return err
	}
	for _, id := range out.EntriesWithLabel(label) {
		if err := m.DeleteEntry(ctx, id); err != nil {
			return trerrors.Wrap(err, fmt.Sprintf("failed to delete boot entry %s", id))
		}
	}
	return nil
}

// GetEntriesWithLabel lists the ids of every boot entry sharing label.
func (m *Manager) GetEntriesWithLabel(ctx context.Context, label string) ([]string, error) {
	out, err := m.list(ctx)
	if err != nil {
		return nil, err
	}
	return out.EntriesWithLabel(label), nil
}

// List returns the current parsed efibootmgr state.
func (m *Manager) List(ctx context.Context) (Output, error) {
	return m.list(ctx)
}

func joinRelative(root, rel string) string {
	root = strings.TrimRight(root, "/")
	rel = strings.TrimLeft(rel, "/")
	return root + "/" + rel
}
