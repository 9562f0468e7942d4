package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pevans/onepager/config"
	"github.com/pevans/onepager/publish"
	"github.com/pevans/onepager/server"
	"github.com/sirupsen/logrus"
)

func handleServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "Listen address")
	verbose := fs.Bool("verbose", false, "Show verbose output")
	fs.Parse(args)

	logger := newLogger(*verbose)
	if !*verbose {
		logger.SetLevel(logrus.InfoLevel)
	}

	store := openTokenStore(cfg)
	defer store.Close()

	fetcher, merger := newMerger(cfg, logger)

	// No prompter: over HTTP the token is managed through /api/v1/meta/token
	publisher, err := publish.New(publish.Options{
		Endpoint:   cfg.Publish.Endpoint,
		SavedUsing: cfg.Publish.SavedUsing,
		Tags:       cfg.Publish.Tags,
		Profile:    cfg.Profile(),
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(server.Options{
		Profile:     cfg.Profile(),
		Merger:      merger,
		Fetcher:     fetcher,
		Publisher:   publisher,
		Tokens:      store,
		ArtifactTTL: cfg.Server.ArtifactTTL,
		Logger:      logger,
	})

	logger.Infof("Starting onepager API on %s/api/v1", *addr)

	if err := srv.SetupRouter().Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: server failed: %v\n", err)
		os.Exit(1)
	}
}
