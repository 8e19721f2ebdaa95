package execrunner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/microsoft/trident/internal/adapter"
)

func TestWriteRepartDefinitionRendersExpectedKeys(t *testing.T) {
	dir := t.TempDir()
	entry := adapter.RepartEntry{
		Label:     "root-a",
		Type:      "root-x86-64",
		MinBytes:  1 << 30,
		MaxBytes:  2 << 30,
	}
	if err := writeRepartDefinition(dir, 0, entry); err != nil {
		t.Fatalf("writeRepartDefinition: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.conf"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected exactly one .conf file, got %v (err %v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read definition: %v", err)
	}
	content := string(data)
	for _, want := range []string{"[Partition]", "Type=root-x86-64", "Label=root-a", "SizeMinBytes=1073741824", "SizeMaxBytes=2147483648"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected definition to contain %q, got:\n%s", want, content)
		}
	}
}

func TestWriteRepartDefinitionGrowPartitionLeavesSizeMaxZero(t *testing.T) {
	dir := t.TempDir()
	entry := adapter.RepartEntry{Label: "home", Type: "home"}
	if err := writeRepartDefinition(dir, 0, entry); err != nil {
		t.Fatalf("writeRepartDefinition: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.conf"))
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "SizeMaxBytes=0") {
		t.Fatalf("expected an unset max size to render as SizeMaxBytes=0, got:\n%s", data)
	}
}

func TestSanitizeFileComponentReplacesUnsafeCharacters(t *testing.T) {
	if got := sanitizeFileComponent("root/a b"); got != "root_a_b" {
		t.Fatalf("expected sanitized name, got %q", got)
	}
	if got := sanitizeFileComponent(""); got != "partition" {
		t.Fatalf("expected fallback name for empty label, got %q", got)
	}
}
