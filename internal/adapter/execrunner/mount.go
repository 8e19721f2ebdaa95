package execrunner

import "context"

// MountRunner mounts and unmounts filesystems via mount(8)/umount(8).
type MountRunner struct {
	Runner
}

func (m MountRunner) Mount(ctx context.Context, devicePath, target, fsType string) error {
	args := []string{}
	if fsType != "" {
		args = append(args, "-t", fsType)
	}
	args = append(args, devicePath, target)
	return m.RunAndCheck(ctx, "mount", args...)
}

func (m MountRunner) Unmount(ctx context.Context, target string) error {
	return m.RunAndCheck(ctx, "umount", target)
}
