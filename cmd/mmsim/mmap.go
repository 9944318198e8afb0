package main

import (
	"context"
	"flag"

	"sv39os/kernel/memory"
	"sv39os/kernel/mm/aspace"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// Mmap implements subcommands.Command for the "mmap" command.
type Mmap struct {
	program string
}

// Name implements subcommands.Command.
func (*Mmap) Name() string {
	return "mmap"
}

// Synopsis implements subcommands.Command.
func (*Mmap) Synopsis() string {
	return "replays map/unmap requests against a user address space"
}

// Usage implements subcommands.Command.
func (*Mmap) Usage() string {
	return `mmap [flags] <request>...

Each request is either "map:<start>-<end>:<perm>" or "unmap:<start>-<end>",
where perm is a combination of the letters r, w, x and u.
`
}

// SetFlags implements subcommands.Command.
func (m *Mmap) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.program, "program", "", "ELF program whose address space serves the requests; an empty address space is used if unset.")
}

// Execute implements subcommands.Command.
func (m *Mmap) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	reqs := make([]request, 0, f.NArg())
	for _, arg := range f.Args() {
		req, err := parseRequest(arg)
		if err != nil {
			loggerFrom(ctx).WithError(err).Error("invalid request")
			return subcommands.ExitUsageError
		}
		reqs = append(reqs, req)
	}

	sim, err := boot(ctx)
	if err != nil {
		loggerFrom(ctx).WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer sim.shutdown()

	var ms *aspace.MemorySet
	if m.program == "" {
		ms = aspace.NewBare()
	} else if ms, _, _, err = loadProgram(m.program); err != nil {
		sim.log.WithError(err).Error("unable to load program")
		return subcommands.ExitFailure
	}

	task := newSimTask(ms)
	memory.SetCurrentTaskFn(func() memory.Task { return task })
	defer memory.SetCurrentTaskFn(nil)

	status := subcommands.ExitSuccess
	for i, req := range reqs {
		entry := sim.log.WithFields(logrus.Fields{
			"request": f.Arg(i),
			"unmap":   req.unmap,
		})

		if kerr := req.apply(); kerr != nil {
			entry.WithField("error", kerr.Message).Warn("request rejected")
			status = subcommands.ExitFailure
			continue
		}
		entry.Info("request served")
	}

	space, release := task.MemorySetExclusiveAccess()
	sim.logAreas("task", space)
	space.Release()
	release()

	sim.logStats()
	return status
}
