package main

import (
	"context"
	"flag"
	"fmt"

	"sv39os/kernel/mm/aspace"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// Exec implements subcommands.Command for the "exec" command.
type Exec struct {
	activate bool
}

// Name implements subcommands.Command.
func (*Exec) Name() string {
	return "exec"
}

// Synopsis implements subcommands.Command.
func (*Exec) Synopsis() string {
	return "builds the address space of an ELF program"
}

// Usage implements subcommands.Command.
func (*Exec) Usage() string {
	return "exec [flags] <elf file>\n"
}

// SetFlags implements subcommands.Command.
func (e *Exec) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&e.activate, "activate", true, "switches to the program address space and back to the kernel.")
}

// Execute implements subcommands.Command.
func (e *Exec) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	sim, err := boot(ctx)
	if err != nil {
		loggerFrom(ctx).WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer sim.shutdown()

	ms, sp, entry, err := loadProgram(f.Arg(0))
	if err != nil {
		sim.log.WithError(err).Error("unable to load program")
		return subcommands.ExitFailure
	}
	defer ms.Release()

	kernelSP := aspace.InsertKernelStack(0)
	defer aspace.RemoveKernelStack(0)

	sim.logAreas(f.Arg(0), ms)
	sim.log.WithFields(logrus.Fields{
		"entry":     fmt.Sprintf("%#x", entry),
		"user_sp":   fmt.Sprintf("%#x", sp),
		"kernel_sp": fmt.Sprintf("%#x", uint64(kernelSP)),
		"satp":      fmt.Sprintf("%#x", ms.Token()),
		"trap_ctx":  fmt.Sprintf("%#x", uint64(aspace.TrapContext)),
	}).Info("program loaded")

	if e.activate {
		ms.Activate()
		aspace.KernelSpace().With(func(k *aspace.MemorySet) { k.Activate() })
		sim.log.Debug("switched to the program address space and back")
	}

	sim.logStats()
	return subcommands.ExitSuccess
}
