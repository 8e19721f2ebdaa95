package execrunner

import (
	"context"
	"strconv"
)

// Tpm2Runner probes and clears the TPM via the tpm2-tools suite.
type Tpm2Runner struct {
	Runner
}

func (t Tpm2Runner) PCRRead(ctx context.Context, pcr uint8) error {
	return t.RunAndCheck(ctx, "tpm2_pcrread", "sha256:"+strconv.Itoa(int(pcr)))
}

func (t Tpm2Runner) Clear(ctx context.Context) error {
	return t.RunAndCheck(ctx, "tpm2_clear")
}
