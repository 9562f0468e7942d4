package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/config"
	"github.com/pevans/onepager/feeds"
	"github.com/pevans/onepager/fetch"
	"github.com/pevans/onepager/merge"
	"github.com/pevans/onepager/pagination"
	"github.com/pevans/onepager/publish"
	"github.com/pevans/onepager/render"
	"github.com/pevans/onepager/urlnorm"
	"github.com/sirupsen/logrus"
)

func handleMerge(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	mode := fs.String("mode", "document", "Output mode: inplace, document, publish or settings")
	formatName := fs.String("format", "html", "Document format: html or markdown")
	outPath := fs.String("out", "", "Write output to file instead of stdout")
	force := fs.Bool("force", false, "Merge even if the page has no pagination")
	verbose := fs.Bool("verbose", false, "Show verbose output")
	fs.Parse(args)

	action, err := article.ParseAction(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if action == article.OpenSettings {
		handleTokenStatus(cfg)
		return
	}

	format, err := render.ParseFormat(*formatName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: article URL is required\n")
		fmt.Fprintf(os.Stderr, "Usage: onepager merge [flags] <url>\n")
		os.Exit(1)
	}
	articleURL := fs.Arg(0)
	if err := urlnorm.CheckOrigin(articleURL, cfg.Profile().Origin); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(*verbose)
	fetcher, merger := newMerger(cfg, logger)

	doc, err := fetcher.Fetch(ctx, articleURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load article: %v\n", err)
		os.Exit(1)
	}
	host := merge.Host{URL: articleURL, Doc: doc}

	if !*force && !pagination.Paginated(doc, articleURL, cfg.Profile()) {
		fmt.Fprintln(os.Stderr, "No pagination found; nothing to merge. Use --force to merge anyway.")
		return
	}

	var (
		out      merge.Output
		buf      bytes.Buffer
		delivery *publish.Delivery
	)
	switch action {
	case article.MergeInPlace:
		inPlace, err := render.NewInPlace(host, cfg.Profile())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = inPlace
	case article.MergePublish:
		store := openTokenStore(cfg)
		defer store.Close()
		delivery = newPublisher(cfg, store, logger).Output()
		out = delivery
	default:
		out = render.NewStandalone(&buf, format, cfg.Profile())
	}

	res, err := merger.Merge(ctx, host, out)
	if err != nil {
		if res != nil {
			fmt.Fprintln(os.Stderr, res.Summary())
		}
		var rejected *publish.RejectedError
		switch {
		case errors.Is(err, merge.ErrNoArticleFound):
			fmt.Fprintln(os.Stderr, "Error: could not find the main article element. The page layout might have changed.")
		case errors.Is(err, publish.ErrUnauthorized):
			fmt.Fprintln(os.Stderr, "Error: Readwise token required.")
		case errors.As(err, &rejected):
			fmt.Fprintf(os.Stderr, "Error saving to Readwise: %v\n", rejected)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	switch action {
	case article.MergeInPlace:
		page, err := doc.Html()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to render page: %v\n", err)
			os.Exit(1)
		}
		exitOnWriteError(writeOutput(*outPath, []byte(page)))
	case article.MergePublish:
		fmt.Printf("✓ Saved to Readwise\n")
		fmt.Printf("  Document ID: %s\n", delivery.Result.ID)
	default:
		exitOnWriteError(writeOutput(*outPath, buf.Bytes()))
	}

	fmt.Fprintln(os.Stderr, res.Summary())
}

func handleFeed(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	dir := fs.String("dir", ".", "Directory to write merged documents to")
	formatName := fs.String("format", "html", "Document format: html or markdown")
	concurrency := fs.Int("concurrency", 2, "Articles merged in parallel")
	limit := fs.Int("limit", 0, "Merge at most this many articles (0 for all)")
	verbose := fs.Bool("verbose", false, "Show verbose output")
	fs.Parse(args)

	format, err := render.ParseFormat(*formatName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: feed URL is required\n")
		fmt.Fprintf(os.Stderr, "Usage: onepager feed [flags] <feed-url>\n")
		os.Exit(1)
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create %s: %v\n", *dir, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(*verbose)
	fetcher, merger := newMerger(cfg, logger)

	urls, err := feeds.ArticleURLs(ctx, fs.Arg(0), cfg.Profile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *limit > 0 && len(urls) > *limit {
		urls = urls[:*limit]
	}
	if len(urls) == 0 {
		fmt.Println("No articles found in feed.")
		return
	}

	outcomes := feeds.RunAll(ctx, urls, *concurrency, func(ctx context.Context, articleURL string) error {
		doc, err := fetcher.Fetch(ctx, articleURL)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		host := merge.Host{URL: articleURL, Doc: doc}
		if _, err := merger.Merge(ctx, host, render.NewStandalone(&buf, format, cfg.Profile())); err != nil {
			return err
		}

		return os.WriteFile(filepath.Join(*dir, outputName(articleURL, format)), buf.Bytes(), 0o644)
	})

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", o.URL, o.Err)
			continue
		}
		fmt.Printf("✓ %s\n", o.URL)
	}
	fmt.Printf("\nMerged %d of %d article(s) into %s\n", len(outcomes)-failed, len(outcomes), *dir)

	if failed > 0 {
		os.Exit(1)
	}
}

// newMerger builds the fetcher and merger from cfg.
func newMerger(cfg *config.Config, logger *logrus.Logger) (*fetch.Fetcher, *merge.Merger) {
	opts := cfg.FetchOptions()
	opts.Logger = logger
	fetcher := fetch.New(opts)

	merger, err := merge.New(merge.Options{
		Profile: cfg.Profile(),
		Fetcher: fetcher,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return fetcher, merger
}

// newPublisher builds a Readwise publisher that prompts on stdin.
func newPublisher(cfg *config.Config, store *config.TokenStore, logger *logrus.Logger) *publish.Publisher {
	p, err := publish.New(publish.Options{
		Endpoint:   cfg.Publish.Endpoint,
		SavedUsing: cfg.Publish.SavedUsing,
		Tags:       cfg.Publish.Tags,
		Profile:    cfg.Profile(),
		Store:      store,
		Prompter:   publish.PrompterFunc(promptStdin),
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return p
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func exitOnWriteError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
