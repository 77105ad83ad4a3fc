package main

import (
	"flag"
	"fmt"
	"os"

	"relaygent/internal/config"
	"relaygent/internal/monitor"
)

func main() {
	fs := flag.NewFlagSet("relaymon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "config file path (default ~/.relaygent/relaygent.toml)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaymon: load config: %v\n", err)
		os.Exit(1)
	}
	if err := monitor.Run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "relaymon: %v\n", err)
		os.Exit(1)
	}
}
