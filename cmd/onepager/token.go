package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pevans/onepager/config"
	"github.com/pevans/onepager/publish"
)

func handleTokenCommand(cfg *config.Config, action string, args []string) {
	switch action {
	case "status":
		handleTokenStatus(cfg)
	case "set":
		handleTokenSet(cfg, args)
	case "clear":
		handleTokenClear(cfg)
	case "help", "--help", "-h":
		printTokenUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown token command: %s\n\n", action)
		printTokenUsage()
		os.Exit(1)
	}
}

func printTokenUsage() {
	fmt.Println("onepager token - Manage the Readwise access token")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  onepager token <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  status     Show whether a token is stored")
	fmt.Println("  set        Set or change the token (prompts when no token is given)")
	fmt.Println("  clear      Remove the stored token")
	fmt.Println("  help       Show this help message")
}

func handleTokenStatus(cfg *config.Config) {
	store := openTokenStore(cfg)
	defer store.Close()

	present, err := store.HasToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if present {
		fmt.Println("✓ Readwise token is set")
		fmt.Println("  Change it with: onepager token set")
		fmt.Println("  Remove it with: onepager token clear")
		return
	}
	fmt.Println("Readwise token is not set")
	fmt.Println("  Get one at https://readwise.io/access_token, then run: onepager token set")
}

func handleTokenSet(cfg *config.Config, args []string) {
	store := openTokenStore(cfg)
	defer store.Close()

	token := strings.Join(args, " ")
	if strings.TrimSpace(token) == "" {
		answer, err := promptStdin(context.Background(), publish.TokenPrompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		token = answer
	}

	if err := store.SetToken(token); err != nil {
		if errors.Is(err, config.ErrEmptyToken) {
			fmt.Fprintln(os.Stderr, "Token not changed.")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Readwise token saved")
}

func handleTokenClear(cfg *config.Config) {
	store := openTokenStore(cfg)
	defer store.Close()

	if err := store.DeleteToken(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Readwise token cleared")
}
