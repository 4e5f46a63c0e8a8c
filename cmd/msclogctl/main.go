// Command msclogctl reads and changes the logging interval of an attached
// temperature logger over its HID configuration interface.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&getCmd{}, "")
	subcommands.Register(&setCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
