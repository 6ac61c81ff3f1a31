// Package chipset models the board interrupt fabric: the fixed fan-out
// vector of global interrupt lines and the handles peripherals assert.
package chipset

// InterruptSink receives interrupt assertions for a given global line.
// The CPU cluster's private interrupt controller implements this.
type InterruptSink interface {
	SetIRQ(line uint8, level bool)
}

// LineInterrupt models one interrupt line with level and edge semantics.
type LineInterrupt interface {
	SetLevel(high bool)
	PulseInterrupt()
}

type noopLineInterrupt struct{}

func (noopLineInterrupt) SetLevel(bool)   {}
func (noopLineInterrupt) PulseInterrupt() {}

// LineInterruptDetached returns a LineInterrupt that drops all signals.
func LineInterruptDetached() LineInterrupt {
	return noopLineInterrupt{}
}

// LineInterruptFromFunc adapts a simple level function to LineInterrupt.
func LineInterruptFromFunc(fn func(bool)) LineInterrupt {
	return lineInterruptFunc(fn)
}

type lineInterruptFunc func(bool)

func (f lineInterruptFunc) SetLevel(level bool) {
	if f != nil {
		f(level)
	}
}

func (f lineInterruptFunc) PulseInterrupt() {
	if f != nil {
		f(true)
		f(false)
	}
}

type noopInterruptSink struct{}

func (noopInterruptSink) SetIRQ(uint8, bool) {}
