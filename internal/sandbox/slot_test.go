package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSlotFromWorkerName(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"worker-0", 0, true},
		{"worker-7", 7, true},
		{"worker-999", 999, true},
		{"worker-7-eu", 7, true},
		{"worker-1000", 0, false},
		{"worker-abc", 0, false},
		{"worker-", 0, false},
		{"runner-3", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := SlotFromWorkerName(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SlotFromWorkerName(%q) = (%d, %v), want (%d, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFreeSlot(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"0", "1", "3"} {
		if err := os.Mkdir(filepath.Join(root, name), 0755); err != nil {
			t.Fatalf("Failed to create box dir: %v", err)
		}
	}

	slot, ok := FreeSlot(root)
	if !ok {
		t.Fatal("Expected a free slot")
	}
	if slot != 2 {
		t.Errorf("Expected slot 2, got %d", slot)
	}
}

func TestFreeSlot_IgnoresNonNumericEntries(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "0"), 0755); err != nil {
		t.Fatalf("Failed to create box dir: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "lost+found"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "1"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	// "1" is a file, not a box directory, so it does not count as used.
	slot, ok := FreeSlot(root)
	if !ok || slot != 1 {
		t.Errorf("Expected slot 1, got (%d, %v)", slot, ok)
	}
}

func TestFreeSlot_MissingRoot(t *testing.T) {
	if _, ok := FreeSlot(filepath.Join(t.TempDir(), "absent")); ok {
		t.Error("Expected no slot for a missing box root")
	}
}

func TestAllocateSlot_ExplicitWins(t *testing.T) {
	if got := AllocateSlot(7, "worker-2", t.TempDir()); got != 7 {
		t.Errorf("Expected explicit slot 7, got %d", got)
	}
}

func TestAllocateSlot_WorkerName(t *testing.T) {
	if got := AllocateSlot(-1, "worker-5", t.TempDir()); got != 5 {
		t.Errorf("Expected slot 5 from worker name, got %d", got)
	}
}

func TestAllocateSlot_ScansBoxRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "0"), 0755); err != nil {
		t.Fatalf("Failed to create box dir: %v", err)
	}

	if got := AllocateSlot(-1, "api", root); got != 1 {
		t.Errorf("Expected slot 1 from box root scan, got %d", got)
	}
}

func TestAllocateSlot_RandomFallback(t *testing.T) {
	got := AllocateSlot(-1, "api", filepath.Join(t.TempDir(), "absent"))
	if got < 0 || got > 999 {
		t.Errorf("Expected random slot in [0, 999], got %d", got)
	}
}
