package execrunner

import "context"

// MkfsRunner creates filesystems via the per-filesystem mkfs.* wrappers.
type MkfsRunner struct {
	Runner
}

func (m MkfsRunner) Mkfs(ctx context.Context, fsType, devicePath string) error {
	return m.RunAndCheck(ctx, "mkfs."+fsType, devicePath)
}
