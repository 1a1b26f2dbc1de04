// Command pricectl runs price tracker operations from the shell, outside of
// the server process.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&refreshCmd{}, "tracker")
	commander.Register(&cardCmd{}, "tracker")
	commander.Register(&historyCmd{}, "history")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
