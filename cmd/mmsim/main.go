// Command mmsim boots the memory management subsystem on a simulated hart
// and drives it the way the rest of the kernel would: loading programs,
// forking address spaces and serving map/unmap requests.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var (
	boardFile = flag.String("board", "", "TOML file describing the board layout; the qemu virt layout is used if empty.")
	debug     = flag.Bool("debug", false, "enables debug logging.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Boot), "")
	subcommands.Register(new(Exec), "")
	subcommands.Register(new(Fork), "")
	subcommands.Register(new(Mmap), "")

	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx := context.WithValue(context.Background(), loggerKey{}, logger)
	os.Exit(int(subcommands.Execute(ctx)))
}
