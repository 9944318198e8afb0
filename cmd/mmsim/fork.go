package main

import (
	"context"
	"flag"

	"sv39os/kernel/mm/aspace"
	"sv39os/kernel/mm/vmm"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// Fork implements subcommands.Command for the "fork" command.
type Fork struct{}

// Name implements subcommands.Command.
func (*Fork) Name() string {
	return "fork"
}

// Synopsis implements subcommands.Command.
func (*Fork) Synopsis() string {
	return "loads an ELF program and duplicates its address space"
}

// Usage implements subcommands.Command.
func (*Fork) Usage() string {
	return "fork <elf file>\n"
}

// SetFlags implements subcommands.Command.
func (*Fork) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*Fork) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

	parent, sp, _, err := loadProgram(f.Arg(0))
	if err != nil {
		sim.log.WithError(err).Error("unable to load program")
		return subcommands.ExitFailure
	}
	defer parent.Release()

	child := aspace.FromExistingUser(parent)
	defer child.Release()

	// Each task gets its own kernel stack; parent is task 0, child task 1.
	for id := 0; id < 2; id++ {
		aspace.InsertKernelStack(id)
		defer aspace.RemoveKernelStack(id)
	}

	sim.logAreas("parent", parent)
	sim.logAreas("child", child)

	// Write to the top word of the child's stack; the parent must not see it.
	slot := sp - 8
	ref, kerr := vmm.TranslatedRefMut[uint64](child.Token(), slot)
	if kerr != nil {
		sim.log.WithError(kerr).Error("unable to reach the child stack")
		return subcommands.ExitFailure
	}
	*ref = 0xc0ffee

	parentValue, kerr := vmm.TranslatedRef[uint64](parent.Token(), slot)
	if kerr != nil {
		sim.log.WithError(kerr).Error("unable to reach the parent stack")
		return subcommands.ExitFailure
	}

	sim.log.WithFields(logrus.Fields{
		"parent_satp": parent.Token(),
		"child_satp":  child.Token(),
		"isolated":    parentValue != *ref,
	}).Info("address space duplicated")

	sim.logStats()
	return subcommands.ExitSuccess
}
