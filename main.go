/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/frameq/engine"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the engine configuration")
	frames := flag.Uint64("frames", 0, "stop after this many frames, overrides the config")
	capture := flag.String("capture", "", "write the last frame to this file, overrides the config")
	flag.Parse()

	cfg := core.DefaultConfig()
	if _, err := os.Stat(*configPath); err == nil {
		if cfg, err = core.LoadConfig(*configPath); err != nil {
			core.LogFatal("%s", err.Error())
		}
	} else {
		core.LogWarn("config %s not found, using defaults", *configPath)
	}
	if *frames > 0 {
		cfg.Application.MaxFrames = *frames
	}
	if *capture != "" {
		cfg.Application.CapturePath = *capture
	}

	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		core.LogFatal("%s", err.Error())
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%s", err.Error())
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	// run engine
	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("%s", err.Error())
	}
	if runErr != nil {
		core.LogFatal("%s", runErr.Error())
	}
}
