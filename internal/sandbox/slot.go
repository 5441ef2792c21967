package sandbox

import (
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// SlotFromWorkerName extracts a box ID from worker names following the
// "worker-N" convention.
func SlotFromWorkerName(name string) (int, bool) {
	if !strings.HasPrefix(name, "worker-") {
		return 0, false
	}

	parts := strings.Split(name, "-")
	slot, err := strconv.Atoi(parts[1])
	if err != nil || slot < 0 || slot > 999 {
		return 0, false
	}
	return slot, true
}

// FreeSlot scans the box root for the lowest box ID not currently in
// use. It reports false when the root cannot be read or every slot is
// taken.
func FreeSlot(boxRoot string) (int, bool) {
	entries, err := os.ReadDir(boxRoot)
	if err != nil {
		return 0, false
	}

	used := make(map[int]bool)
	for _, e := range entries {
		if !e.IsDir() || !isDigits(e.Name()) {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			used[n] = true
		}
	}

	for slot := 0; slot < 1000; slot++ {
		if !used[slot] {
			return slot, true
		}
	}
	return 0, false
}

// AllocateSlot picks the box ID for a worker. An explicit non-negative
// ID wins, then the worker name convention, then the lowest free slot,
// then a random one.
func AllocateSlot(explicit int, workerName, boxRoot string) int {
	if explicit >= 0 {
		return explicit
	}
	if slot, ok := SlotFromWorkerName(workerName); ok {
		return slot
	}

	slot, ok := FreeSlot(boxRoot)
	if !ok {
		slot = rand.Intn(1000)
	}
	log.Printf("Using auto-assigned box ID %d", slot)
	return slot
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
