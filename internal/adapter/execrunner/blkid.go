package execrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/microsoft/trident/internal/adapter"
)

// BlkidRunner reads existing partition tables via lsblk's JSON output, which
// carries the same identifying fields blkid does plus partition numbering.
type BlkidRunner struct {
	Runner
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	PartN    int           `json:"partn"`
	UUID     string        `json:"uuid"`
	Label    string        `json:"label"`
	Size     string        `json:"size"`
	Children []lsblkDevice `json:"children"`
}

func (b BlkidRunner) ReadPartitionTable(ctx context.Context, diskPath string) ([]adapter.ExistingPartitionRow, error) {
	out, err := b.OutputAndCheck(ctx, "lsblk", "-J", "-b", "-o", "NAME,PATH,PARTN,UUID,LABEL,SIZE", diskPath)
	if err != nil {
		return nil, fmt.Errorf("lsblk %s: %w", diskPath, err)
	}
	rows, err := parseLsblkOutput(out)
	if err != nil {
		return nil, fmt.Errorf("parse lsblk output for %s: %w", diskPath, err)
	}
	return rows, nil
}

func parseLsblkOutput(out string) ([]adapter.ExistingPartitionRow, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, err
	}

	var rows []adapter.ExistingPartitionRow
	for _, dev := range parsed.BlockDevices {
		for _, child := range dev.Children {
			if child.PartN == 0 {
				continue
			}
			size, _ := strconv.ParseUint(child.Size, 10, 64)
			rows = append(rows, adapter.ExistingPartitionRow{
				Number:    child.PartN,
				UUID:      child.UUID,
				Label:     child.Label,
				Path:      child.Path,
				SizeBytes: size,
			})
		}
	}
	return rows, nil
}
