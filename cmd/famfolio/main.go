// Command famfolio is the operator CLI. It opens the same storage as the
// server, so run it against a stopped server when using the embedded
// badger backend.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/bobmcallan/famfolio/internal/app"
)

// cliEnv is handed to every command through Execute's variadic args.
type cliEnv struct {
	open func() (*app.App, error)
	out  io.Writer
}

func envFrom(args []interface{}) *cliEnv {
	return args[0].(*cliEnv)
}

func register(commander *subcommands.Commander) {
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	commander.Register(&versionCmd{}, "")

	commander.Register(&holdingsCmd{}, "ledger")
	commander.Register(&gainCmd{}, "ledger")
	commander.Register(&cashCmd{}, "ledger")
	commander.Register(&assetsCmd{}, "ledger")
	commander.Register(&importCmd{}, "ledger")

	commander.Register(&refreshCmd{}, "prices")
	commander.Register(&staleCmd{}, "prices")
	commander.Register(&missingCmd{}, "prices")
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	register(commander)

	configPath := flag.String("config", "", "path to famfolio.toml")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	env := &cliEnv{
		open: func() (*app.App, error) { return app.NewApp(*configPath) },
		out:  os.Stdout,
	}
	os.Exit(int(commander.Execute(context.Background(), env)))
}
