package main

import (
	"context"
	"flag"
	"fmt"

	"sv39os/kernel/mm/aspace"

	"github.com/google/subcommands"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct{}

// Name implements subcommands.Command.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.
func (*Boot) Synopsis() string {
	return "boots the memory subsystem and prints the kernel address space"
}

// Usage implements subcommands.Command.
func (*Boot) Usage() string {
	return "boot\n"
}

// SetFlags implements subcommands.Command.
func (*Boot) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*Boot) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	sim, err := boot(ctx)
	if err != nil {
		loggerFrom(ctx).WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer sim.shutdown()

	aspace.KernelSpace().With(func(ms *aspace.MemorySet) {
		sim.logAreas("kernel", ms)
	})
	sim.log.WithField("satp", fmt.Sprintf("%#x", aspace.KernelToken())).Info("kernel space active")
	sim.logStats()
	return subcommands.ExitSuccess
}
