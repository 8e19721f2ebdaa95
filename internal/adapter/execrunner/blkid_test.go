package execrunner

import "testing"

const sampleLsblkOutput = `{
   "blockdevices": [
      {"name":"sda","path":"/dev/sda","partn":null,"uuid":null,"label":null,"size":"256060514304",
       "children": [
          {"name":"sda1","path":"/dev/sda1","partn":1,"uuid":"1111-2222","label":"esp","size":"536870912"},
          {"name":"sda2","path":"/dev/sda2","partn":2,"uuid":"3333-4444","label":"root-a","size":"8589934592"}
       ]}
   ]
}`

func TestParseLsblkOutputSkipsTheDiskItselfAndKeepsPartitions(t *testing.T) {
	rows, err := parseLsblkOutput(sampleLsblkOutput)
	if err != nil {
		t.Fatalf("parseLsblkOutput: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 partition rows, got %d", len(rows))
	}
	if rows[0].Label != "esp" || rows[0].Number != 1 || rows[0].SizeBytes != 536870912 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Label != "root-a" || rows[1].UUID != "3333-4444" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestParseLsblkOutputRejectsMalformedJSON(t *testing.T) {
	if _, err := parseLsblkOutput("not json"); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
