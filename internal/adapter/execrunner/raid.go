package execrunner

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// RaidRunner drives mdadm.
type RaidRunner struct {
	Runner
}

func (r RaidRunner) Create(ctx context.Context, name string, level string, members []string, metadataVersion string) error {
	args := []string{
		"--create", name,
		"--level=" + level,
		fmt.Sprintf("--raid-devices=%d", len(members)),
		"--metadata=" + metadataVersion,
		"--run",
	}
	args = append(args, members...)
	return r.RunAndCheck(ctx, "mdadm", args...)
}

func (r RaidRunner) Stop(ctx context.Context, name string) error {
	return r.RunAndCheck(ctx, "mdadm", "--stop", name)
}

// ExistingArraysOn reports the md device names mdadm's incremental scan
// associates with any of diskPaths, by examining each disk directly rather
// than relying on arrays already being assembled.
func (r RaidRunner) ExistingArraysOn(ctx context.Context, diskPaths []string) ([]string, error) {
	seen := map[string]struct{}{}
	var names []string
	for _, disk := range diskPaths {
		out, err := r.OutputAndCheck(ctx, "mdadm", "--examine", "--scan", disk)
		if err != nil {
			// No superblock on this disk is not an error worth stopping
			// the whole scan for.
			continue
		}
		for _, name := range parseMdadmScanArrays(out) {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// parseMdadmScanArrays extracts the device name from each "ARRAY <device>
// ..." line of `mdadm --examine --scan` output.
func parseMdadmScanArrays(out string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "ARRAY" {
			names = append(names, fields[1])
		}
	}
	return names
}
