// Command govm runs a bundled demonstration bytecode program through the
// VM. The parser and compiler are external collaborators out of scope for
// this repository; govm accepts only pre-assembled programs built with
// internal/asm until one is wired in.
package main

import (
	"flag"
	"fmt"
	"os"

	"govm/internal/config"
	"govm/internal/demo"
	"govm/internal/vm"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "govm:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("govm", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file (heap_words, quantum, debug)")
	heapWords := fs.Int("heap-words", 0, "initial heap size in words (0 = use config/default)")
	maxHeapWords := fs.Int("max-heap-words", 0, "cap on heap growth in words (0 = uncapped)")
	quantum := fs.Int("quantum", 0, "instructions per task turn (0 = use config/default)")
	debug := fs.Bool("debug", false, "enable debug logging and heap dump")
	disasm := fs.Bool("disasm", false, "print a disassembly listing and exit without running")
	program := fs.String("program", "fibonacci", "bundled demo program: "+demo.Names())
	if err := fs.Parse(args); err != nil {
		return err
	}

	file, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Apply(vm.DefaultConfig(), file)
	if *heapWords != 0 {
		cfg.HeapWords = *heapWords
	}
	if *maxHeapWords != 0 {
		cfg.MaxHeapWords = *maxHeapWords
	}
	if *quantum != 0 {
		cfg.Quantum = *quantum
	}
	if *debug {
		cfg.Debug = true
	}

	prog, entryPC, err := demo.Lookup(*program)
	if err != nil {
		return err
	}

	if *disasm {
		for i, in := range prog.Code {
			fmt.Printf("%4d  %s\n", i, in.String())
		}
		return nil
	}

	machine, err := vm.New(cfg, prog, entryPC)
	if err != nil {
		return fmt.Errorf("initializing vm: %w", err)
	}
	machine.Reg.SetOutput(os.Stdout)
	if err := machine.Run(); err != nil {
		return err
	}
	if cfg.Debug {
		fmt.Fprintln(os.Stderr, machine.Dump())
	}
	return nil
}
