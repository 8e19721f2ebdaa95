package boot

import (
	"strings"

	"golang.org/x/text/encoding/unicode"

	trerrors "github.com/microsoft/trident/internal/errors"
)

// LoaderEntries is the UKI-mode analog of the BootOrder variable: a
// newline-separated list of systemd-boot loader entry filenames (e.g.
// "AZL-A.conf"), read and written as a UTF-16LE EFI variable.
type LoaderEntries struct {
	Entries []string
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeLoaderEntries parses the raw UTF-16LE bytes of the LoaderEntries EFI
// variable.
func DecodeLoaderEntries(raw []byte) (LoaderEntries, error) {
	decoded, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		return LoaderEntries{}, trerrors.Wrap(err, "failed to decode LoaderEntries EFI variable")
	}
	text := strings.TrimRight(string(decoded), "\x00")
	var entries []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line != "" {
			entries = append(entries, line)
		}
	}
	return LoaderEntries{Entries: entries}, nil
}

// Encode serializes LoaderEntries back to UTF-16LE bytes suitable for
// writing to the EFI variable.
func (l LoaderEntries) Encode() ([]byte, error) {
	text := strings.Join(l.Entries, "\n")
	if len(l.Entries) > 0 {
		text += "\n"
	}
	encoded, err := utf16LE.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, trerrors.Wrap(err, "failed to encode LoaderEntries EFI variable")
	}
	return encoded, nil
}

// SetDefaultToPrevious moves current to the front of the list, so it becomes
// the systemd-boot default again, without disturbing the relative order of
// the remaining entries. Used when finalizing a manual A/B rollback in UKI
// mode, to make the rolled-back-to install the default again.
func (l LoaderEntries) SetDefaultToPrevious(current string) LoaderEntries {
	out := make([]string, 0, len(l.Entries))
	out = append(out, current)
	for _, e := range l.Entries {
		if e != current {
			out = append(out, e)
		}
	}
	return LoaderEntries{Entries: out}
}

// Contains reports whether name is present.
func (l LoaderEntries) Contains(name string) bool {
	for _, e := range l.Entries {
		if e == name {
			return true
		}
	}
	return false
}
