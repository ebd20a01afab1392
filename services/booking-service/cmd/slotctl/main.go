package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	envx "github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
)

var CLI struct {
	Version kong.VersionFlag

	Slots   SlotsCmd   `cmd:"" help:"List bookable start times for a provider, service and date."`
	Sweep   SweepCmd   `cmd:"" help:"Run one auto-completion pass."`
	Migrate MigrateCmd `cmd:"" help:"Apply pending Postgres migrations."`
	Seed    SeedCmd    `cmd:"" help:"Load providers, hours and services from a YAML file."`
	Token   TokenCmd   `cmd:"" help:"Mint an HS256 token for the staff API."`
}

func main() {
	// .env must be applied before kong resolves env-backed flags.
	if err := envx.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ctx := kong.Parse(&CLI,
		kong.Name("slotctl"),
		kong.Description("Operator tool for the slotbook booking service"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	rc := &runContext{
		logger: runtime.NewLoggerWithConfig("slotctl", runtime.LogConfig{Level: envx.String("LOG_LEVEL", "warn")}),
		out:    os.Stdout,
	}
	if err := ctx.Run(rc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
