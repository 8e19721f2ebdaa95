package boot

import (
	"context"
	"reflect"
	"testing"

	"github.com/microsoft/trident/internal/adapter/adaptertest"
)

const sampleOutput = `BootNext: 0000
BootCurrent: 0001
Timeout: 0 seconds
BootOrder: 0001,0000,0002,000A
Boot0000 Windows Boot Manager
Boot0001* ubuntu
Boot0002* UEFI: Built-in EFI Shell
Boot000A* Mariner
`

func TestParseEfibootmgrOutput(t *testing.T) {
	out, err := ParseEfibootmgrOutput(sampleOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Output{
		BootNext: "0000",
		BootCurrent: "0001",
		BootOrder: []string{"0001", "0000", "0002", "000A"},
		Entries: []Entry{
			{ID: "0000", Label: "Windows Boot Manager"},
			{ID: "0001", Label: "ubuntu"},
			{ID: "0002", Label: "UEFI: Built-in EFI Shell"},
			{ID: "000A", Label: "Mariner"},
		},
	}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("parsed output mismatch:\ngot: %+v\nwant: %+v", out, want)
	}

	if !out.IsCurrent("0001") {
		t.Fatal("expected 0001 to be current")
	}
	if out.IsCurrent("0002") {
		t.Fatal("expected 0002 to not be current")
	}
	if id, ok := out.EntryNumber("Windows Boot Manager"); !ok || id != "0000" {
		t.Fatalf("expected entry number 0000, got %q ok=%v", id, ok)
	}
	if !out.Exists("Windows Boot Manager") {
		t.Fatal("expected entry to exist")
	}
}

func TestParseEfibootmgrOutput_RoundTrip(t *testing.T) {
	// Parsing the re-emitted text of an already-parsed Output reproduces it
	// exactly.
	first, err := ParseEfibootmgrOutput(sampleOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := ParseEfibootmgrOutput(first.String())
	if err != nil {
		t.Fatalf("unexpected error re-parsing: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("round-trip mismatch:\nfirst: %+v\nsecond: %+v", first, second)
	}
}

func TestGetEntriesWithLabel(t *testing.T) {
	sample := `BootCurrent: 0001
	BootOrder: 0001,0000,0002,000A
	Boot0000 Windows Boot Manager
	Boot0001* Mariner
	Boot0002* UEFI: Built-in EFI Shell
	Boot000A* Mariner
	`
	out, err := ParseEfibootmgrOutput(sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.EntriesWithLabel("Mariner")
	want := []string{"0001", "000A"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := out.EntriesWithLabel("TestBoot"); got != nil {
		t.Fatalf("expected no entries, got %v", got)
	}
}

func TestManager_Create_DuplicateLabelFails(t *testing.T) {
	fake := adaptertest.NewFakeEfibootmgr("0001", []string{"0001"}, map[string]string{"0001": "ubuntu"})
	m := NewManager(fake, func(string) bool { return true }, "/boot/efi/loader/entries.conf")

	if err := m.Create(context.Background(), "ubuntu", "/dev/sda", "/boot/efi", "/EFI/AZLA/bootx64.efi", 1); err == nil {
		t.Fatal("expected duplicate-label error")
	}
}

func TestManager_Create_MissingLoaderFails(t *testing.T) {
	fake := adaptertest.NewFakeEfibootmgr("0001", nil, nil)
	m := NewManager(fake, func(string) bool { return false }, "/boot/efi/loader/entries.conf")

	if err := m.Create(context.Background(), "TestBoot1", "/dev/sda", "/boot/efi", "/EFI/AZLA/bootx64.efi", 1); err == nil {
		t.Fatal("expected missing-loader error")
	}
}

func TestManager_Create_Succeeds(t *testing.T) {
	fake := adaptertest.NewFakeEfibootmgr("0001", []string{"0001"}, map[string]string{"0001": "ubuntu"})
	m := NewManager(fake, func(string) bool { return true }, "/boot/efi/loader/entries.conf")

	if err := m.Create(context.Background(), "TestBoot1", "/dev/sda", "/boot/efi", "/EFI/AZLA/bootx64.efi", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, err := m.GetEntriesWithLabel(context.Background(), "TestBoot1")
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected one TestBoot1 entry, got %v err=%v", ids, err)
	}
}

func TestManager_DeleteEntriesWithLabel_UpdatesBootOrder(t *testing.T) {
	fake := adaptertest.NewFakeEfibootmgr("0001", []string{"0001", "0002"}, map[string]string{
			"0001": "TestBoot1", "0002": "TestBoot1",
	})
	m := NewManager(fake, func(string) bool { return true }, "/boot/efi/loader/entries.conf")

	if err := m.DeleteEntriesWithLabel(context.Background(), "TestBoot1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Entries) != 0 {
		t.Fatalf("expected all TestBoot1 entries removed, got %v", fake.Entries)
	}
	if len(fake.BootOrder) != 0 {
		t.Fatalf("expected boot order cleared of removed entries, got %v", fake.BootOrder)
	}
}

func TestManager_SetBootNextAndDelete(t *testing.T) {
	fake := adaptertest.NewFakeEfibootmgr("0001", []string{"0001"}, map[string]string{"0001": "ubuntu"})
	m := NewManager(fake, func(string) bool { return true }, "/boot/efi/loader/entries.conf")

	if err := m.SetBootNext(context.Background(), "0001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.BootNext != "0001" {
		t.Fatalf("expected BootNext 0001, got %q", fake.BootNext)
	}
	if err := m.DeleteBootNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.BootNext != "" {
		t.Fatalf("expected BootNext cleared, got %q", fake.BootNext)
	}
}
