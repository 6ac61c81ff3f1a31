package memmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOverlapRejected(t *testing.T) {
	a := New()
	if _, err := a.AddRAM("ram", 0x60000000, 0x1000); err != nil {
		t.Fatalf("AddRAM returned error: %v", err)
	}
	if _, err := a.AddDevice("dev", 0x60000800, 0x1000); err == nil {
		t.Fatalf("AddDevice accepted a region overlapping RAM")
	}
	if _, err := a.AddDevice("dev", 0x60001000, 0x1000); err != nil {
		t.Fatalf("adjacent region rejected: %v", err)
	}
}

func TestZeroSizeAndOverflowRejected(t *testing.T) {
	a := New()
	if _, err := a.AddDevice("empty", 0x1000, 0); err == nil {
		t.Fatalf("zero-size region accepted")
	}
	if _, err := a.AddDevice("wrap", ^uint64(0)-0x10, 0x100); err == nil {
		t.Fatalf("overflowing region accepted")
	}
}

func TestAliasCoherence(t *testing.T) {
	a := New()
	ram, err := a.AddRAM("highmem", 0x60000000, 0x10000)
	if err != nil {
		t.Fatalf("AddRAM returned error: %v", err)
	}
	if _, err := a.AddAlias("lowmem", 0, ram, 0, 0x8000); err != nil {
		t.Fatalf("AddAlias returned error: %v", err)
	}

	// A write through the alias is visible through the RAM region.
	if err := a.WritePhys(0x1234, []byte{0xde, 0xad}); err != nil {
		t.Fatalf("WritePhys via alias returned error: %v", err)
	}
	got := make([]byte, 2)
	if err := a.ReadPhys(0x60001234, got); err != nil {
		t.Fatalf("ReadPhys via RAM returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xde, 0xad}) {
		t.Fatalf("RAM read = %x, want dead", got)
	}

	// And the reverse.
	if err := a.WritePhys(0x60000010, []byte{0x42}); err != nil {
		t.Fatalf("WritePhys via RAM returned error: %v", err)
	}
	if err := a.ReadPhys(0x10, got[:1]); err != nil {
		t.Fatalf("ReadPhys via alias returned error: %v", err)
	}
	if got[0] != 0x42 {
		t.Fatalf("alias read = %#x, want 0x42", got[0])
	}
}

func TestAliasWindowValidation(t *testing.T) {
	a := New()
	ram, err := a.AddRAM("ram", 0x60000000, 0x1000)
	if err != nil {
		t.Fatalf("AddRAM returned error: %v", err)
	}
	if _, err := a.AddAlias("bad", 0, ram, 0x800, 0x1000); err == nil {
		t.Fatalf("alias window beyond target size accepted")
	}

	dev, err := a.AddDevice("dev", 0x70000000, 0x1000)
	if err != nil {
		t.Fatalf("AddDevice returned error: %v", err)
	}
	_ = dev
	if _, err := a.AddAlias("bad", 0, dev, 0, 0x1000); err == nil {
		t.Fatalf("alias over an unbacked region accepted")
	}
}

func TestAccessValidation(t *testing.T) {
	a := New()
	if _, err := a.AddRAM("ram", 0x1000, 0x1000); err != nil {
		t.Fatalf("AddRAM returned error: %v", err)
	}
	if _, err := a.AddDevice("dev", 0x3000, 0x1000); err != nil {
		t.Fatalf("AddDevice returned error: %v", err)
	}

	buf := make([]byte, 4)
	if err := a.ReadPhys(0x0, buf); err == nil {
		t.Fatalf("read from unmapped address succeeded")
	}
	if err := a.ReadPhys(0x1ffe, buf); err == nil {
		t.Fatalf("read crossing a region end succeeded")
	}
	if err := a.ReadPhys(0x3000, buf); err == nil {
		t.Fatalf("read from an unbacked device window succeeded")
	}
}

func TestFlashRequiresWholeSectors(t *testing.T) {
	a := New()
	if _, err := a.AddFlash("flash", 0x40000000, 0x40001, 0x40000, ""); err == nil {
		t.Fatalf("flash with a partial sector accepted")
	}
}

func TestFlashEraseSector(t *testing.T) {
	a := New()
	bank, err := a.AddFlash("flash", 0x40000000, 4*0x40000, 0x40000, "")
	if err != nil {
		t.Fatalf("AddFlash returned error: %v", err)
	}
	if got := bank.Sectors(); got != 4 {
		t.Fatalf("Sectors = %d, want 4", got)
	}

	if err := a.WritePhys(0x40040000, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WritePhys returned error: %v", err)
	}
	if err := bank.EraseSector(1); err != nil {
		t.Fatalf("EraseSector returned error: %v", err)
	}
	got := make([]byte, 3)
	if err := a.ReadPhys(0x40040000, got); err != nil {
		t.Fatalf("ReadPhys returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xff, 0xff, 0xff}) {
		t.Fatalf("erased sector reads %x, want ff ff ff", got)
	}

	if err := bank.EraseSector(4); err == nil {
		t.Fatalf("EraseSector accepted an out-of-range index")
	}
}

func TestFlashFileBacking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash0.img")

	a := New()
	bank, err := a.AddFlash("flash", 0x40000000, 0x80000, 0x40000, path)
	if err != nil {
		t.Fatalf("AddFlash with backing file returned error: %v", err)
	}

	if err := a.WritePhys(0x40000000, []byte("boot")); err != nil {
		t.Fatalf("WritePhys returned error: %v", err)
	}
	if err := bank.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if len(data) != 0x80000 {
		t.Fatalf("backing file is %d bytes, want %d", len(data), 0x80000)
	}
	if !bytes.Equal(data[:4], []byte("boot")) {
		t.Fatalf("backing file starts with %q, want boot", data[:4])
	}
}
