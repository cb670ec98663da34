package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"

	"aurforge/internal/aurforge"
)

func main() {
	cfg, err := aurforge.LoadConfig(aurforge.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not read %s: %v\n", aurforge.ConfigFile, err)
	}
	aurforge.InitConfig(cfg)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.Disable()
	}

	// Ctrl-C and SIGTERM abandon in-flight builds; recipe bundles are
	// disposable and the ledger is only written on completed success.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Whole-run timeout. In-flight builds are abandoned when it fires; the
	// output directory and ledger stay consistent.
	if v := cfg.Values["AURFORGE_TIMEOUT_MIN"]; v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(minutes)*time.Minute)
			defer cancel()
		}
	}

	os.Exit(aurforge.Dispatch(ctx, cfg, os.Args[1:]))
}
