package execrunner

import (
	"context"
	"strconv"
	"strings"
)

// PcrlockRunner generates and removes systemd-pcrlock policies.
type PcrlockRunner struct {
	Runner
}

func (p PcrlockRunner) RemovePolicy(ctx context.Context) error {
	return p.RunAndCheck(ctx, "systemd-pcrlock", "remove-policy")
}

func (p PcrlockRunner) GeneratePolicy(ctx context.Context, pcrs []uint8, ukiPaths, bootloaderPaths []string) error {
	strs := make([]string, len(pcrs))
	for i, v := range pcrs {
		strs[i] = strconv.Itoa(int(v))
	}
	args := []string{"make-policy", "--pcrs=" + strings.Join(strs, "+")}
	for _, uki := range ukiPaths {
		args = append(args, "--components="+uki)
	}
	for _, bl := range bootloaderPaths {
		args = append(args, "--components="+bl)
	}
	return p.RunAndCheck(ctx, "systemd-pcrlock", args...)
}
