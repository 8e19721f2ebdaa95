package boot

import (
	"reflect"
	"testing"
)

func TestLoaderEntries_EncodeDecodeRoundTrip(t *testing.T) {
	entries := LoaderEntries{Entries: []string{"AZL-A.conf", "AZL-B.conf"}}

	encoded, err := entries.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := DecodeLoaderEntries(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(entries, decoded) {
		t.Fatalf("round-trip mismatch: got %+v want %+v", decoded, entries)
	}
}

func TestLoaderEntries_SetDefaultToPrevious(t *testing.T) {
	entries := LoaderEntries{Entries: []string{"AZL-A.conf", "AZL-B.conf"}}
	rotated := entries.SetDefaultToPrevious("AZL-B.conf")

	want := []string{"AZL-B.conf", "AZL-A.conf"}
	if !reflect.DeepEqual(rotated.Entries, want) {
		t.Fatalf("expected %v, got %v", want, rotated.Entries)
	}
}

func TestLoaderEntries_Contains(t *testing.T) {
	entries := LoaderEntries{Entries: []string{"AZL-A.conf"}}
	if !entries.Contains("AZL-A.conf") {
		t.Fatal("expected entry to be present")
	}
	if entries.Contains("AZL-B.conf") {
		t.Fatal("expected entry to be absent")
	}
}

func TestDecodeLoaderEntries_EmptyInput(t *testing.T) {
	decoded, err := DecodeLoaderEntries(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.Entries) != 0 {
		t.Fatalf("expected no entries, got %v", decoded.Entries)
	}
}
