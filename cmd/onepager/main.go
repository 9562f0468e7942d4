package main

import (
	"fmt"
	"os"

	"github.com/pevans/onepager/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Environment overrides the config file
	cfg.Storage.TokenDSN = getEnv("ONEPAGER_TOKEN_DSN", cfg.Storage.TokenDSN)
	cfg.Server.Addr = getEnv("ONEPAGER_ADDR", cfg.Server.Addr)

	// Get subcommand
	subcommand := os.Args[1]

	switch subcommand {
	case "merge":
		handleMerge(cfg, os.Args[2:])
	case "feed":
		handleFeed(cfg, os.Args[2:])
	case "token":
		if len(os.Args) < 3 {
			printTokenUsage()
			os.Exit(1)
		}
		handleTokenCommand(cfg, os.Args[2], os.Args[3:])
	case "serve":
		handleServe(cfg, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("onepager - Merge paginated golem.de articles into one page")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  onepager <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  merge      Merge all pages of an article")
	fmt.Println("  feed       Merge every article listed in a feed")
	fmt.Println("  token      Manage the Readwise access token")
	fmt.Println("  serve      Start the HTTP API")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  ONEPAGER_TOKEN_DSN  Path to the token database (default: ~/.onepager/onepager.db)")
	fmt.Println("  ONEPAGER_ADDR       Listen address for serve (default: 127.0.0.1:8080)")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.onepager/config.yaml when present.")
}
