package graph

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// SizeGrow is the sentinel partition size meaning "consume the remainder of
// the disk"
const SizeGrow = "grow"

// IsGrow reports whether a declared partition size is the "grow" sentinel.
func IsGrow(size string) bool {
	return strings.EqualFold(strings.TrimSpace(size), SizeGrow)
}

// ParseSize resolves a declared fixed size ("512M", "4G") to bytes. Callers
// must check IsGrow first; ParseSize rejects the "grow" sentinel.
func ParseSize(size string) (uint64, error) {
	return humanize.ParseBytes(size)
}
