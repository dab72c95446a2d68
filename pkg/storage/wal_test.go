package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.journal")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	for _, line := range []string{"0x01 buy ok", "0x02 addListing InsufficientQuantity"} {
		if err := j.Append(line); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if want := "0x01 buy ok\n0x02 addListing InsufficientQuantity\n"; string(data) != want {
		t.Errorf("journal = %q, want %q", data, want)
	}

	// Writes after close surface the error
	if err := j.Append("0x03 buy ok"); err == nil {
		t.Error("expected error appending to a closed journal")
	}
}
