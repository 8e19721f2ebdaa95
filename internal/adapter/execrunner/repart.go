package execrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/microsoft/trident/internal/adapter"
)

// RepartRunner drives systemd-repart by writing a drop-in configuration
// directory and invoking the binary against a disk.
type RepartRunner struct {
	Runner
}

type repartdPartition struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	UUID     string `json:"uuid"`
	PartNo   int    `json:"partno"`
	Node     string `json:"node"`
	RawSize  string `json:"raw_size"`
}

func (r RepartRunner) Repart(ctx context.Context, diskPath string, entries []adapter.RepartEntry, existingTable bool) (*adapter.RepartResult, error) {
	defsDir, err := os.MkdirTemp("", "trident-repart-*")
	if err != nil {
		return nil, fmt.Errorf("create repart definitions dir: %w", err)
	}
	defer os.RemoveAll(defsDir)

	for i, e := range entries {
		if err := writeRepartDefinition(defsDir, i, e); err != nil {
			return nil, err
		}
	}

	args := []string{"--definitions=" + defsDir, "--json=short", "--dry-run=no"}
	if !existingTable {
		args = append(args, "--empty=force")
	} else {
		args = append(args, "--empty=refuse")
	}
	args = append(args, diskPath)

	out, err := r.OutputAndCheck(ctx, "systemd-repart", args...)
	if err != nil {
		return nil, fmt.Errorf("systemd-repart %s: %w", diskPath, err)
	}

	var rows []repartdPartition
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		return nil, fmt.Errorf("parse systemd-repart json output: %w", err)
	}

	result := &adapter.RepartResult{}
	for _, row := range rows {
		size, _ := strconv.ParseUint(row.RawSize, 10, 64)
		result.Partitions = append(result.Partitions, adapter.RepartResultEntry{
			Label:     row.Label,
			Path:      row.Node,
			PartUUID:  row.UUID,
			SizeBytes: size,
			Number:    row.PartNo,
		})
	}
	return result, nil
}

// writeRepartDefinition renders one systemd.repart(5) drop-in for entry,
// numbered so systemd-repart applies them in declaration order.
func writeRepartDefinition(dir string, index int, e adapter.RepartEntry) error {
	lines := []string{
		"[Partition]",
		"Type=" + e.Type,
	}
	if e.Label != "" {
		lines = append(lines, "Label="+e.Label)
	}
	if e.ExistingPartition {
		lines = append(lines, "Existing=yes")
	}
	if e.MinBytes > 0 {
		lines = append(lines, fmt.Sprintf("SizeMinBytes=%d", e.MinBytes))
	}
	if e.MaxBytes > 0 {
		lines = append(lines, fmt.Sprintf("SizeMaxBytes=%d", e.MaxBytes))
	} else {
		lines = append(lines, "SizeMaxBytes=0")
	}

	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d-%s.conf", index, sanitizeFileComponent(e.Label)))
	return os.WriteFile(path, []byte(content), 0o644)
}

func sanitizeFileComponent(s string) string {
	if s == "" {
		return "partition"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
