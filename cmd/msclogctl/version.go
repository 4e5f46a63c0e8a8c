package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/subcommands"

	"github.com/ehrlich-b/go-msclog/internal/version"
)

type versionCmd struct{}

func (*versionCmd) Name() string { return "version" }

func (*versionCmd) Usage() string {
	return "version\n"
}

func (*versionCmd) Synopsis() string {
	return "prints the tool and firmware versions"
}

func (*versionCmd) SetFlags(*flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Printf("msclogctl %s\n", version.Current())

	d, err := detect()
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	defer d.Close()

	firmware := version.FromBCD(d.info.VersionNumber)
	ok, err := version.Compatible(firmware)
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	fmt.Printf("firmware %s (%s)\n", firmware, d.info.Path)
	if !ok {
		log.Printf("firmware %s is not compatible with this tool", firmware)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
