package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/ehrlich-b/go-msclog/internal/settings"
)

type setCmd struct {
	verify  bool
	timeout time.Duration
}

func (*setCmd) Name() string { return "set" }

func (*setCmd) Usage() string {
	return "set [flags...] <ticks>\n\nflags:\n"
}

func (*setCmd) Synopsis() string {
	return "changes the logging interval"
}

func (cmd *setCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.verify, "verify", true, "Read the interval back after setting it")
	f.DurationVar(&cmd.timeout, "timeout", 2*time.Second, "How long to wait for the read back")
}

func parseInterval(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("interval %q: must be 0-255", s)
	}
	return uint8(v), nil
}

func (cmd *setCmd) execute(ctx context.Context, interval uint8) error {
	d, err := detect()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Set(settings.Report{LoggingInterval: interval}); err != nil {
		return err
	}
	if !cmd.verify {
		return nil
	}

	// Reports queued before the write may still carry the old value.
	deadline := time.Now().Add(cmd.timeout)
	for time.Now().Before(deadline) {
		r, err := d.Get(ctx, time.Until(deadline))
		if err != nil {
			return err
		}
		if r.LoggingInterval == interval {
			fmt.Printf("logging interval: %d ticks\n", interval)
			return nil
		}
	}
	return fmt.Errorf("device did not confirm interval %d", interval)
}

func (cmd *setCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Print("set: expected exactly one interval argument")
		return subcommands.ExitUsageError
	}
	interval, err := parseInterval(f.Arg(0))
	if err != nil {
		log.Print(err)
		return subcommands.ExitUsageError
	}
	if err := cmd.execute(ctx, interval); err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
