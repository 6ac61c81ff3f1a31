// Package boot carries the descriptor handed to the guest loader and a
// minimal loader that places boot images into guest RAM.
package boot

// ModifyDTBFunc lets the board splice additional nodes into an externally
// supplied device-tree blob during image preparation.
type ModifyDTBFunc func(blob []byte) ([]byte, error)

// Descriptor aggregates everything the guest loader needs to start the
// machine. It is assembled once per boot and consumed exactly once.
type Descriptor struct {
	RAMSize    uint64
	KernelPath string
	InitrdPath string
	Cmdline    string
	Cores      int

	BoardID         uint32
	SysID           uint32
	LoaderStart     uint64
	SMPLoaderStart  uint64
	SMPBootRegAddr  uint64
	GICCPUInterface uint64

	ModifyDTB ModifyDTBFunc
}

// Params are the inputs to Assemble, flattened so the package stays
// independent of the board composer.
type Params struct {
	RAMSize    uint64
	KernelPath string
	InitrdPath string
	Cmdline    string
	Cores      int

	BoardID         uint32
	SysID           uint32
	LoaderStart     uint64
	SMPLoaderStart  uint64
	SMPBootRegAddr  uint64
	GICCPUInterface uint64

	ModifyDTB ModifyDTBFunc
}

// Assemble builds the boot descriptor. Pure aggregation: validation happened
// upstream in the composition pipeline.
func Assemble(p Params) *Descriptor {
	return &Descriptor{
		RAMSize:         p.RAMSize,
		KernelPath:      p.KernelPath,
		InitrdPath:      p.InitrdPath,
		Cmdline:         p.Cmdline,
		Cores:           p.Cores,
		BoardID:         p.BoardID,
		SysID:           p.SysID,
		LoaderStart:     p.LoaderStart,
		SMPLoaderStart:  p.SMPLoaderStart,
		SMPBootRegAddr:  p.SMPBootRegAddr,
		GICCPUInterface: p.GICCPUInterface,
		ModifyDTB:       p.ModifyDTB,
	}
}
