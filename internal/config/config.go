// Package config loads machine definition files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Machine describes a board to compose, as written in a YAML machine file.
type Machine struct {
	Platform string `yaml:"platform"`

	MemoryMB uint64 `yaml:"memoryMB,omitempty"`
	CPUs     int    `yaml:"cpus,omitempty"`
	CPUKind  string `yaml:"cpuKind,omitempty"`

	Kernel  string `yaml:"kernel,omitempty"`
	Initrd  string `yaml:"initrd,omitempty"`
	Cmdline string `yaml:"cmdline,omitempty"`
	DTB     string `yaml:"dtb,omitempty"`

	Transports int      `yaml:"transports,omitempty"`
	Flash      []string `yaml:"flash,omitempty"`
}

func (m *Machine) normalize() {
	if m.MemoryMB == 0 {
		m.MemoryMB = 512
	}
	if m.CPUs == 0 {
		m.CPUs = 1
	}
	if m.Transports == 0 {
		m.Transports = 4
	}
}

// Validate checks fields the composer cannot default.
func (m *Machine) Validate() error {
	if m.Platform == "" {
		return fmt.Errorf("config: machine file does not name a platform")
	}
	if len(m.Flash) > 2 {
		return fmt.Errorf("config: at most two flash backing files, got %d", len(m.Flash))
	}
	return nil
}

// Load reads and normalizes a machine file.
func Load(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses machine file contents.
func Decode(data []byte) (*Machine, error) {
	var m Machine
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	m.normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
