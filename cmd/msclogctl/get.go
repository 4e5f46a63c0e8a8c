package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/subcommands"
)

type getCmd struct {
	timeout time.Duration
}

func (*getCmd) Name() string { return "get" }

func (*getCmd) Usage() string {
	return "get [flags...]\n\nflags:\n"
}

func (*getCmd) Synopsis() string {
	return "prints the current logging interval"
}

func (cmd *getCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&cmd.timeout, "timeout", 2*time.Second, "How long to wait for a report")
}

func (cmd *getCmd) execute(ctx context.Context) error {
	d, err := detect()
	if err != nil {
		return err
	}
	defer d.Close()

	r, err := d.Get(ctx, cmd.timeout)
	if err != nil {
		return err
	}
	fmt.Printf("logging interval: %d ticks\n", r.LoggingInterval)
	return nil
}

func (cmd *getCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := cmd.execute(ctx); err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
