package execrunner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CryptsetupRunner drives LUKS2 format/reencrypt/open/close and TPM
// enrollment via systemd-cryptenroll.
type CryptsetupRunner struct {
	Runner
}

func (c CryptsetupRunner) Format(ctx context.Context, devicePath, keyFilePath string) error {
	return c.RunAndCheck(ctx, "cryptsetup", "luksFormat", "--type", "luks2", "--batch-mode",
		"--key-file", keyFilePath, devicePath)
}

func (c CryptsetupRunner) Reencrypt(ctx context.Context, devicePath, keyFilePath string) error {
	return c.RunAndCheck(ctx, "cryptsetup", "reencrypt", "--batch-mode",
		"--key-file", keyFilePath, devicePath)
}

func (c CryptsetupRunner) EnrollTPM(ctx context.Context, devicePath string, pcrs []uint8, pcrlockPolicyPath string) error {
	strs := make([]string, len(pcrs))
	for i, p := range pcrs {
		strs[i] = strconv.Itoa(int(p))
	}
	args := []string{"enroll", "--tpm2-device=auto"}
	if pcrlockPolicyPath != "" {
		args = append(args, "--tpm2-pcrlock="+pcrlockPolicyPath)
	} else {
		args = append(args, "--tpm2-pcrs="+strings.Join(strs, "+"))
	}
	args = append(args, devicePath)
	return c.RunAndCheck(ctx, "systemd-cryptenroll", args...)
}

func (c CryptsetupRunner) Open(ctx context.Context, devicePath, mappedName, keyFilePath string) error {
	return c.RunAndCheck(ctx, "cryptsetup", "open", "--key-file", keyFilePath, devicePath, mappedName)
}

func (c CryptsetupRunner) Close(ctx context.Context, mappedName string) error {
	return c.RunAndCheck(ctx, "cryptsetup", "close", mappedName)
}

func (c CryptsetupRunner) WipeSlot(ctx context.Context, devicePath string, slot int) error {
	return c.RunAndCheck(ctx, "cryptsetup", "luksKillSlot", "--batch-mode", devicePath, fmt.Sprintf("%d", slot))
}
