package execrunner

import (
	"context"
	"fmt"
	"strings"
)

// LoopRunner attaches/detaches loopback devices via losetup.
type LoopRunner struct {
	Runner
}

func (l LoopRunner) Attach(ctx context.Context, imagePath string) (string, error) {
	out, err := l.OutputAndCheck(ctx, "losetup", "--show", "-f", "-P", imagePath)
	if err != nil {
		return "", fmt.Errorf("losetup attach %s: %w", imagePath, err)
	}
	dev := strings.TrimSpace(out)
	if dev == "" {
		return "", fmt.Errorf("losetup attach %s: no device path returned", imagePath)
	}
	return dev, nil
}

func (l LoopRunner) Detach(ctx context.Context, loopDevice string) error {
	return l.RunAndCheck(ctx, "losetup", "-d", loopDevice)
}
