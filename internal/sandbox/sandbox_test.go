package sandbox

import (
	"strings"
	"testing"
)

func TestValidFileName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"main.py", true},
		{"data.txt", true},
		{"Main", true},
		{"", false},
		{".", false},
		{"..", false},
		{"dir/file.txt", false},
		{"../escape.txt", false},
		{"/etc/passwd", false},
	}

	for _, tt := range tests {
		if got := ValidFileName(tt.name); got != tt.ok {
			t.Errorf("ValidFileName(%q) = %v, want %v", tt.name, got, tt.ok)
		}
	}
}

func TestIsolateArgs(t *testing.T) {
	b := &Box{
		cfg:  DefaultConfig(),
		slot: 3,
		path: "/var/local/lib/isolate/3/box",
	}

	limits := Limits{
		CPUTime:   2,
		ExtraTime: 0.5,
		WallTime:  5,
		Memory:    128000,
		Processes: 128,
		FileSize:  10240,
	}

	args := b.isolateArgs("meta.txt", limits)
	want := []string{
		"--box-id=3",
		"--meta=/var/local/lib/isolate/3/box/meta.txt",
		"--full-env",
		"--time=2",
		"--extra-time=0.5",
		"--wall-time=5",
		"--mem=128000",
		"--processes=128",
		"--fsize=10240",
	}

	if len(args) != len(want) {
		t.Fatalf("Expected %d args, got %d: %v", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestIsolateArgs_ConditionalFlags(t *testing.T) {
	b := &Box{cfg: DefaultConfig(), slot: 0, path: "/tmp/0/box"}

	limits := DefaultLimits()
	limits.PerProcessTime = true
	limits.PerProcessMemory = true
	limits.ShareNetwork = true

	joined := strings.Join(b.isolateArgs("meta.txt", limits), " ")
	for _, flag := range []string{"--cg-timing", "--cg-mem", "--share-net"} {
		if !strings.Contains(joined, flag) {
			t.Errorf("Expected %s in args, got %s", flag, joined)
		}
	}

	joined = strings.Join(b.isolateArgs("meta.txt", DefaultLimits()), " ")
	for _, flag := range []string{"--cg-timing", "--cg-mem", "--share-net"} {
		if strings.Contains(joined, flag) {
			t.Errorf("Did not expect %s in args, got %s", flag, joined)
		}
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.CPUTime != 2.0 {
		t.Errorf("Expected CPU time 2.0, got %g", limits.CPUTime)
	}
	if limits.Memory != 128000 {
		t.Errorf("Expected memory 128000, got %d", limits.Memory)
	}
	if limits.RedirectStderr || limits.ShareNetwork {
		t.Error("Expected execution flags to default to off")
	}
}
