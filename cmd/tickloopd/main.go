package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zeusync/tickloop/internal/config"
	"github.com/zeusync/tickloop/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults are used when empty")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "tickloopd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load(strings.NewReader(""))
	}
	return config.LoadFile(path)
}

