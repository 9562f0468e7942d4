package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pevans/onepager/config"
	"github.com/pevans/onepager/render"
	"github.com/sirupsen/logrus"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// newLogger returns a stderr logger, at debug level when verbose.
func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// openTokenStore opens the token database, creating its directory.
func openTokenStore(cfg *config.Config) *config.TokenStore {
	if dir := filepath.Dir(cfg.Storage.TokenDSN); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	store, err := config.NewTokenStore(cfg.Storage.TokenDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open token store: %v\n", err)
		os.Exit(1)
	}
	return store
}

// promptStdin asks for a line on stdin. An empty line or EOF means the user
// cancelled.
func promptStdin(_ context.Context, message string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s\n> ", message)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

// outputName derives a file name for an article from its URL.
func outputName(articleURL string, format render.Format) string {
	name := "article"
	if u, err := url.Parse(articleURL); err == nil {
		if base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path)); base != "" && base != "." && base != "/" {
			name = base
		}
	}
	return name + format.Extension()
}
