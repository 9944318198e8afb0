package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/hal/board"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/kmain"
	"sv39os/kernel/memory"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/aspace"
	"sv39os/kernel/mm/heap"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/sync"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

func loggerFrom(ctx context.Context) *logrus.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*logrus.Logger); ok {
		return l
	}
	return logrus.StandardLogger()
}

// simulator holds the state of a booted machine.
type simulator struct {
	log    *logrus.Logger
	layout *board.Layout
	sink   io.WriteCloser
}

// boot brings up the memory subsystem. Kernel console output is forwarded to
// the logger at debug level.
func boot(ctx context.Context) (sim *simulator, err error) {
	log := loggerFrom(ctx)

	layout := board.Default()
	if *boardFile != "" {
		if layout, err = board.Load(*boardFile); err != nil {
			return nil, err
		}
	}

	sink := log.WriterLevel(logrus.DebugLevel)
	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: sink, Prefix: []byte("hart0: ")})

	defer func() {
		if r := recover(); r != nil {
			if r != cpu.ErrHalted {
				panic(r)
			}
			sink.Close()
			sim, err = nil, fmt.Errorf("boot: %w", cpu.ErrHalted)
		}
	}()

	if kerr := layout.Validate(); kerr != nil {
		sink.Close()
		return nil, fmt.Errorf("boot: %w", kerr)
	}
	kmain.Kmain(layout)

	return &simulator{log: log, layout: layout, sink: sink}, nil
}

func (s *simulator) shutdown() {
	kfmt.SetOutputSink(nil)
	s.sink.Close()
}

// logStats reports the usage of the frame pool and the heap arena.
func (s *simulator) logStats() {
	frames := pmm.GetStats()
	arena := heap.GetStats()
	s.log.WithFields(logrus.Fields{
		"frames_total":    frames.Total,
		"frames_in_use":   frames.InUse,
		"frames_recycled": frames.Recycled,
		"heap_total":      uint64(arena.Total),
		"heap_allocated":  uint64(arena.Allocated),
	}).Info("memory usage")
}

// logAreas prints the areas of an address space.
func (s *simulator) logAreas(name string, ms *aspace.MemorySet) {
	for _, a := range ms.Areas() {
		s.log.WithFields(logrus.Fields{
			"space": name,
			"start": fmt.Sprintf("%#x", uint64(a.Range.Start.Addr())),
			"end":   fmt.Sprintf("%#x", uint64(a.Range.End.Addr())),
			"type":  a.Type.String(),
			"perm":  a.Perm.String(),
		}).Info("area")
	}
}

// simTask is a task whose only resource is an address space.
type simTask struct {
	ms *sync.ExclusiveCell[aspace.MemorySet]
}

func newSimTask(ms *aspace.MemorySet) *simTask {
	return &simTask{ms: sync.NewExclusiveCell(*ms)}
}

// MemorySetExclusiveAccess implements memory.Task.
func (t *simTask) MemorySetExclusiveAccess() (*aspace.MemorySet, func()) {
	return t.ms.ExclusiveAccess(), t.ms.Release
}

// loadProgram reads an ELF file and builds its address space.
func loadProgram(path string) (*aspace.MemorySet, uint64, uint64, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, err
	}

	ms, sp, entry, kerr := aspace.FromELF(image)
	if kerr != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, kerr)
	}
	return ms, sp, entry, nil
}

// parsePerm converts a permission string such as "rwu" into a permission set.
func parsePerm(s string) (aspace.MapPermission, error) {
	var perm aspace.MapPermission
	for _, ch := range s {
		switch ch {
		case 'r':
			perm |= aspace.PermR
		case 'w':
			perm |= aspace.PermW
		case 'x':
			perm |= aspace.PermX
		case 'u':
			perm |= aspace.PermU
		case '-':
		default:
			return 0, fmt.Errorf("invalid permission %q in %q", ch, s)
		}
	}
	return perm, nil
}

// request is a single map or unmap operation.
type request struct {
	unmap      bool
	start, end mm.VirtAddr
	perm       aspace.MapPermission
}

// parseRequest parses "map:<start>-<end>:<perm>" or "unmap:<start>-<end>".
func parseRequest(s string) (request, error) {
	var req request

	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 3 && parts[0] == "map":
		perm, err := parsePerm(parts[2])
		if err != nil {
			return req, err
		}
		req.perm = perm
	case len(parts) == 2 && parts[0] == "unmap":
		req.unmap = true
	default:
		return req, fmt.Errorf("malformed request %q", s)
	}

	bounds := strings.SplitN(parts[1], "-", 2)
	if len(bounds) != 2 {
		return req, fmt.Errorf("malformed range %q", parts[1])
	}

	start, err := strconv.ParseUint(bounds[0], 0, 64)
	if err != nil {
		return req, fmt.Errorf("bad range start: %w", err)
	}
	end, err := strconv.ParseUint(bounds[1], 0, 64)
	if err != nil {
		return req, fmt.Errorf("bad range end: %w", err)
	}

	req.start, req.end = mm.NewVirtAddr(start), mm.NewVirtAddr(end)
	return req, nil
}

// apply forwards the request to the memory subsystem on behalf of the
// current task.
func (r request) apply() *kernel.Error {
	if r.unmap {
		return memory.Unmap(r.start, r.end)
	}
	return memory.Map(r.start, r.end, r.perm)
}
