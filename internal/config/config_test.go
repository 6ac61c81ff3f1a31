package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeDefaults(t *testing.T) {
	m, err := Decode([]byte("platform: legacy-A9\n"))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if m.MemoryMB != 512 {
		t.Fatalf("MemoryMB = %d, want 512", m.MemoryMB)
	}
	if m.CPUs != 1 {
		t.Fatalf("CPUs = %d, want 1", m.CPUs)
	}
	if m.Transports != 4 {
		t.Fatalf("Transports = %d, want 4", m.Transports)
	}
}

func TestDecodeFullMachine(t *testing.T) {
	doc := `platform: modern-A15
memoryMB: 2048
cpus: 4
cpuKind: cortex-a15
kernel: vmlinuz
initrd: initrd.img
cmdline: console=ttyAMA0
dtb: board.dtb
transports: 8
flash:
  - nor0.img
  - nor1.img
`
	m, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if m.Platform != "modern-A15" || m.MemoryMB != 2048 || m.CPUs != 4 {
		t.Fatalf("machine fields wrong: %+v", m)
	}
	if m.CPUKind != "cortex-a15" || m.Kernel != "vmlinuz" || m.Cmdline != "console=ttyAMA0" {
		t.Fatalf("image fields wrong: %+v", m)
	}
	if m.Transports != 8 || len(m.Flash) != 2 || m.Flash[1] != "nor1.img" {
		t.Fatalf("transport/flash fields wrong: %+v", m)
	}
}

func TestDecodeRequiresPlatform(t *testing.T) {
	if _, err := Decode([]byte("memoryMB: 256\n")); err == nil {
		t.Fatalf("Decode accepted a machine file without a platform")
	}
}

func TestDecodeRejectsTooManyFlashBanks(t *testing.T) {
	doc := "platform: legacy-A9\nflash: [a.img, b.img, c.img]\n"
	if _, err := Decode([]byte(doc)); err == nil {
		t.Fatalf("Decode accepted three flash backing files")
	}
}

func TestDecodeRejectsMalformedYAML(t *testing.T) {
	if _, err := Decode([]byte("platform: [unclosed\n")); err == nil {
		t.Fatalf("Decode accepted malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	if err := os.WriteFile(path, []byte("platform: legacy-A9\ncpus: 2\n"), 0644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if m.Platform != "legacy-A9" || m.CPUs != 2 {
		t.Fatalf("loaded machine wrong: %+v", m)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load accepted a missing file")
	}
}
