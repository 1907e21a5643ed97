package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webglass/webglass/config"
	"github.com/webglass/webglass/proxy"
	"github.com/webglass/webglass/version"
)

type flags struct {
	version bool // show webglass version
	debug   bool // print debug log

	filename string // read config from the filename
}

func loadFlags() *flags {
	f := new(flags)
	flag.BoolVar(&f.version, "version", false, "show webglass version")
	flag.BoolVar(&f.debug, "debug", false, "print debug log")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [config-file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse() //revive:disable-line:deep-exit -- ok for cmd/*

	f.filename = flag.Arg(0)
	if f.filename == "" {
		f.filename = "config.yaml"
	}
	return f
}

func main() {
	f := loadFlags()

	if f.version {
		fmt.Println("webglass: " + version.String())
		os.Exit(0)
	}

	// Configure global slog logger.
	level := slog.LevelInfo
	addSource := false
	if f.debug {
		level = slog.LevelDebug
		addSource = true // include file:line in debug mode only
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(f.filename)
	if err != nil {
		slog.Error("failed to load config", "file", f.filename, "error", err)
		os.Exit(1)
	}

	mappings, err := cfg.Mappings()
	if err != nil {
		slog.Error("failed to load config", "file", f.filename, "error", err)
		os.Exit(1)
	}

	p, err := proxy.NewProxy(&proxy.Options{
		Addr:           cfg.ListenAddress,
		Mappings:       mappings,
		Auth:           cfg.AuthPolicy(),
		SOCKS5Server:   cfg.SOCKS5Server,
		ReadTimeout:    time.Duration(cfg.ReadTimeout),
		MaxConnections: cfg.MaxConnections,
	})
	if err != nil {
		slog.Error("failed to create proxy", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
			_ = p.Close()
		}
	}()

	slog.Info("webglass started", slog.String("version", version.Version))

	if err := p.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("proxy exited", "error", err)
		os.Exit(1)
	}
}
