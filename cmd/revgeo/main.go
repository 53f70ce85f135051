// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the revgeo console.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/wneessen/revgeo/internal/config"
	"github.com/wneessen/revgeo/internal/i18n"
	"github.com/wneessen/revgeo/internal/logger"
	"github.com/wneessen/revgeo/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type Options struct {
	ConfigFile  string `short:"c" long:"config"      description:"Path to the config file"`
	Location    string `short:"l" long:"location"    description:"Test location to look up, by name or 1-based index"`
	Point       string `short:"p" long:"point"       description:"Free coordinate to look up as <latitude>,<longitude>"`
	Device      bool   `short:"d" long:"device"      description:"Look up the current device location"`
	Output      string `short:"o" long:"output"      description:"Output format" choice:"text" choice:"json" choice:"yaml"`
	Interactive bool   `short:"i" long:"interactive" description:"Start the interactive console"`
	Version     bool   `short:"v" long:"version"     description:"Show version information and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if opts.Version {
		fmt.Printf("revgeo %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.New(slog.LevelError)

	// Provider API keys may live in a .env file next to the working directory
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Error("failed to load env file", logger.Err(err))
		os.Exit(1)
	}

	conf, err := loadConfig(opts.ConfigFile)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if opts.Output != "" {
		conf.Output = opts.Output
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	serv, err := service.New(ctx, conf, log, t, os.Stdin, os.Stdout)
	if err != nil {
		log.Error("failed to initialize revgeo", logger.Err(err))
		os.Exit(1)
	}

	log.Debug(t.Get("starting revgeo"), slog.String("version", version), slog.String("commit", commit),
		slog.String("date", date))
	if opts.Interactive {
		err = serv.RunInteractive(ctx)
	} else {
		err = serv.RunOnce(ctx, service.Selection{
			Location: opts.Location,
			Point:    opts.Point,
			Device:   opts.Device,
		})
	}
	log.Debug(t.Get("shutting down revgeo"))
	if err != nil {
		if !errors.Is(err, service.ErrLookupFailed) {
			log.Error("revgeo failed", logger.Err(err))
		}
		cancel()
		os.Exit(1)
	}
}

// loadConfig reads the given config file, the default config file or, if neither exists, the
// defaults and the environment.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "revgeo", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
