// Command bitcaskd runs a single-node Bitcask engine behind a thin HTTP
// facade.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mini-dynamo/bitcask/internal/server"
	"github.com/mini-dynamo/bitcask/internal/storage"
	"github.com/mini-dynamo/bitcask/pkg/bitcaskopt"
	"github.com/mini-dynamo/bitcask/pkg/logging"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	var (
		addr          = pflag.String("addr", "127.0.0.1:8080", "HTTP listen address")
		dataDir       = pflag.String("data-dir", "./data", "Data directory")
		name          = pflag.String("name", "default", "Instance name")
		maxFileSize   = pflag.Int64("max-file-size", 64*1024*1024, "Data file rotation threshold in bytes")
		maxHandles    = pflag.Int("max-file-handles", 32, "Read handle cache capacity")
		maxHistorical = pflag.Int("max-historical-files", 10, "Sealed files to accumulate before a merge is auto-triggered")
		strictCRC     = pflag.Bool("strict-crc", false, "Fail open/recovery/merge on any CRC mismatch instead of skipping the record")
		configFile    = pflag.String("config", "", "Options JSON file path")
		debugLog      = pflag.Bool("debug", false, "Enable human-readable development logging")
		showVersion   = pflag.Bool("version", false, "Show version")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("bitcaskd v%s (built: %s)\n", version, buildTime)
		os.Exit(0)
	}

	log, err := logging.New(*debugLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var opts *bitcaskopt.Options
	if *configFile != "" {
		opts, err = bitcaskopt.LoadFromFile(*configFile)
		if err != nil {
			log.Fatalw("failed to load options file", "error", err)
		}
	} else {
		opts = bitcaskopt.Default()
	}

	flags := pflag.CommandLine
	if flags.Changed("data-dir") {
		opts.DataDir = *dataDir
	}
	if flags.Changed("name") {
		opts.Name = *name
	}
	if flags.Changed("max-file-size") {
		opts.MaxFileSize = *maxFileSize
	}
	if flags.Changed("max-file-handles") {
		opts.MaxFileHandleCaches = *maxHandles
	}
	if flags.Changed("max-historical-files") {
		opts.MaxHistoricalFiles = *maxHistorical
	}
	if flags.Changed("strict-crc") {
		opts.StrictCRCValidation = *strictCRC
	}

	if err := opts.Validate(); err != nil {
		log.Fatalw("invalid options", "error", err)
	}

	log.Infow("opening engine", "dataDir", opts.DataDir, "name", opts.Name)

	db, err := storage.Open(storage.Config{
		DataDir:             opts.DataDir,
		Name:                opts.Name,
		MaxFileSize:         opts.MaxFileSize,
		MaxFileHandleCaches: opts.MaxFileHandleCaches,
		MaxHistoricalFiles:  opts.MaxHistoricalFiles,
		StrictCRCValidation: opts.StrictCRCValidation,
	}, log)
	if err != nil {
		log.Fatalw("failed to open engine", "error", err)
	}

	stats := db.Stats()
	log.Infow("engine ready", "keys", stats.KeyCount, "dataFiles", stats.DataFileCount)

	srv := server.New(*addr, db, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
			log.Errorw("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infow("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("error stopping http server", "error", err)
	}
	if err := db.Close(); err != nil {
		log.Errorw("error closing engine", "error", err)
	}

	log.Infow("shutdown complete")
}
