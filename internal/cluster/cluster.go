// Package cluster builds the CPU cluster for a board variant: the cores, the
// per-core interrupt sinks, and the private interrupt controller region.
package cluster

import (
	"fmt"
	"sync"

	"github.com/vexmachina/vex/internal/chipset"
)

// CoreKind names an instantiable CPU core model.
type CoreKind string

const (
	CortexA9  CoreKind = "cortex-a9"
	CortexA15 CoreKind = "cortex-a15"
)

// MaxCores is the largest cluster the board supports.
const MaxCores = 4

var instantiable = map[CoreKind]bool{
	CortexA9:  true,
	CortexA15: true,
}

// Core is one CPU core. It exposes an IRQ and an FIQ sink for the fan-out
// vector; instruction execution lives elsewhere.
type Core struct {
	ID   int
	Kind CoreKind

	mu       sync.Mutex
	irqLevel bool
	fiqLevel bool
}

// IRQ returns the core's normal-interrupt sink.
func (c *Core) IRQ() chipset.LineInterrupt {
	return chipset.LineInterruptFromFunc(func(high bool) {
		c.mu.Lock()
		c.irqLevel = high
		c.mu.Unlock()
	})
}

// FIQ returns the core's fast-interrupt sink.
func (c *Core) FIQ() chipset.LineInterrupt {
	return chipset.LineInterruptFromFunc(func(high bool) {
		c.mu.Lock()
		c.fiqLevel = high
		c.mu.Unlock()
	})
}

// Pending reports the current IRQ and FIQ line levels.
func (c *Core) Pending() (irq, fiq bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.irqLevel, c.fiqLevel
}

// Controller is the cluster's private interrupt controller (the MPCore
// private region). It is the sink the fan-out vector forwards into.
type Controller struct {
	// PrivBase is the physical base of the private register region.
	PrivBase uint64
	// CPUInterface is the physical address of the per-CPU interface.
	CPUInterface uint64

	mu     sync.Mutex
	raised map[uint8]bool
}

// SetIRQ implements chipset.InterruptSink.
func (ctl *Controller) SetIRQ(line uint8, level bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.raised == nil {
		ctl.raised = make(map[uint8]bool)
	}
	ctl.raised[line] = level
}

// Raised reports the last asserted level for a global line.
func (ctl *Controller) Raised(line uint8) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.raised[line]
}

// Cluster is a built CPU cluster.
type Cluster struct {
	Kind       CoreKind
	Cores      []*Core
	Controller *Controller
}

// Build instantiates count cores of the requested kind. An empty override
// falls back to the variant's default. Unknown kinds and counts outside
// [1, MaxCores] are configuration errors.
func Build(defaultKind CoreKind, override string, count int, privBase, cpuInterface uint64) (*Cluster, error) {
	kind := defaultKind
	if override != "" {
		kind = CoreKind(override)
	}
	if !instantiable[kind] {
		return nil, fmt.Errorf("cluster: unknown CPU kind %q", kind)
	}
	if count < 1 || count > MaxCores {
		return nil, fmt.Errorf("cluster: core count %d outside [1, %d]", count, MaxCores)
	}

	cl := &Cluster{
		Kind: kind,
		Controller: &Controller{
			PrivBase:     privBase,
			CPUInterface: cpuInterface,
		},
	}
	for i := 0; i < count; i++ {
		cl.Cores = append(cl.Cores, &Core{ID: i, Kind: kind})
	}
	return cl, nil
}

// BindFanout binds every core's IRQ/FIQ pair into the fan-out vector at
// entries 2k and 2k+1.
func (cl *Cluster) BindFanout(fanout *chipset.Fanout) error {
	for _, core := range cl.Cores {
		if err := fanout.BindCore(core.ID, core.IRQ(), core.FIQ()); err != nil {
			return err
		}
	}
	return nil
}
