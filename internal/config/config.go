// Package config assembles a vm.Config from defaults, an optional YAML
// file, and command-line flags, in that increasing order of priority.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"govm/internal/vm"
)

// File is the shape of an optional --config YAML document. Every field is
// a pointer so "absent from the file" is distinguishable from "explicitly
// zero", letting defaults and flags layer correctly underneath it.
type File struct {
	HeapWords    *int  `yaml:"heap_words"`
	MaxHeapWords *int  `yaml:"max_heap_words"`
	Quantum      *int  `yaml:"quantum"`
	Debug        *bool `yaml:"debug"`
}

// Load reads and parses a YAML config file. A missing path is not an error
// at this layer — callers pass "" to skip loading entirely.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, err
	}
	return f, nil
}

// Apply layers f over defaults, producing a vm.Config. Call it first with
// the file, then mutate the result directly with any flags the user set
// explicitly — flags always win.
func Apply(base vm.Config, f File) vm.Config {
	if f.HeapWords != nil {
		base.HeapWords = *f.HeapWords
	}
	if f.MaxHeapWords != nil {
		base.MaxHeapWords = *f.MaxHeapWords
	}
	if f.Quantum != nil {
		base.Quantum = *f.Quantum
	}
	if f.Debug != nil {
		base.Debug = *f.Debug
	}
	return base
}
