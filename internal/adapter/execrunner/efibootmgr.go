package execrunner

import (
	"context"
	"strconv"
	"strings"
)

// EfibootmgrRunner drives UEFI boot-variable manipulation via efibootmgr(8).
type EfibootmgrRunner struct {
	Runner
}

func (e EfibootmgrRunner) List(ctx context.Context) (string, error) {
	return e.OutputAndCheck(ctx, "efibootmgr", "-v")
}

func (e EfibootmgrRunner) Create(ctx context.Context, label, diskPath, loaderPath string, partitionNumber int) error {
	return e.RunAndCheck(ctx, "efibootmgr",
		"--create",
		"--disk", diskPath,
		"--part", strconv.Itoa(partitionNumber),
		"--label", label,
		"--loader", loaderPath,
	)
}

func (e EfibootmgrRunner) SetBootNext(ctx context.Context, id string) error {
	return e.RunAndCheck(ctx, "efibootmgr", "-n", id)
}

func (e EfibootmgrRunner) DeleteBootNext(ctx context.Context) error {
	return e.RunAndCheck(ctx, "efibootmgr", "-N")
}

func (e EfibootmgrRunner) ModifyBootOrder(ctx context.Context, order []string) error {
	return e.RunAndCheck(ctx, "efibootmgr", "-o", strings.Join(order, ","))
}

func (e EfibootmgrRunner) DeleteEntry(ctx context.Context, id string) error {
	return e.RunAndCheck(ctx, "efibootmgr", "-b", id, "-B")
}
