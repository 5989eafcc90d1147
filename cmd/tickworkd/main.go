package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"tickwork/internal/app"
	"tickwork/internal/config"
	"tickwork/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./tickwork.yaml", "path to config yaml")
	flag.Parse()

	// Bootstrap logger: the configured sinks only exist after the config has
	// been read.
	boot := logx.NewConsole("INFO")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		os.Exit(1)
	}

	a, err := app.New(cfgPath, cfg)
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("scheduler start failed", logx.Err(err))
		os.Exit(1)
	}

	<-ctx.Done()
	if err := a.Stop(); err != nil {
		boot.Error("shutdown failed", logx.Err(err))
		os.Exit(1)
	}
}
