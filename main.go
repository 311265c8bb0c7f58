package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hires/internal/config"
	"hires/internal/formatter"
	"hires/internal/scraper"
	_ "hires/internal/sites/file"
	_ "hires/internal/sites/google"
)

var version = "dev"

var (
	headers      []string
	outputFormat string
	outputFile   string
	waitFor      string
	waitTarget   string
	timeout      time.Duration
	selector     string
	site         string
	index        int
	count        int
	configFile   string
	deadline     time.Duration
	savePath     string
	saveLevel    string
	saveSelector string
	showUI       bool
	watch        bool
	proxyURL     string
	verbose      bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:     "hires [query|file]",
		Short:   "Resolve the original images behind image search thumbnails",
		Version: version,
		Long: `hires opens an image search results page in a real browser and finds the
full-resolution address behind each thumbnail. It reads what the page already
holds first, then opens the preview panel behind the user's back and watches
for the original to appear, falling back to the thumbnail when nothing does.`,
		Example: `  # First five originals for a query, one address per line
  hires "red kite"

  # Thumbnails 11-30 as a markdown table
  hires --index 11 --count 20 -f markdown "snow leopard"

  # Resolve whatever you right-click in a visible browser
  hires --watch "aurora borealis"

  # Save the rendered results page and resolve it again offline
  hires --save kites.html "red kite"
  hires --site file --count 0 -o kites.csv kites.html`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				os.Exit(0)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE:         run,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, "Extra request headers for the results page (can be used multiple times)")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format ("+strings.Join(formatter.Formats, ", ")+")")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (format inferred from extension if -f not specified)")
	rootCmd.Flags().StringVarP(&waitFor, "wait-for", "w", "", "Wait strategy (load, element, time, idle); defaults to waiting for thumbnails")
	rootCmd.Flags().StringVarP(&waitTarget, "wait-target", "T", "", "Wait target (selector for 'element' strategy, milliseconds for 'time' strategy)")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Page load timeout")
	rootCmd.Flags().StringVarP(&selector, "selector", "s", "", "Thumbnail selector (overrides selectors.thumbnails)")
	rootCmd.Flags().StringVar(&site, "site", "google", "Site mode ("+strings.Join(scraper.Names(), ", ")+")")
	rootCmd.Flags().IntVarP(&index, "index", "i", 1, "First thumbnail to resolve (1-based)")
	rootCmd.Flags().IntVarP(&count, "count", "n", 5, "Number of thumbnails to resolve (0 for all)")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML file overriding resolver heuristics")
	rootCmd.Flags().DurationVar(&deadline, "deadline", 0, "Per-thumbnail resolution deadline (overrides timing.deadline)")
	rootCmd.Flags().StringVar(&savePath, "save", "", "Save the rendered results page to this file")
	rootCmd.Flags().StringVar(&saveLevel, "save-level", "full", "Saved page level (full, html, css)")
	rootCmd.Flags().StringVar(&saveSelector, "save-selector", "", "Selector for the 'css' save level")
	rootCmd.Flags().BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "Resolve every right-clicked thumbnail until interrupted (implies --showui)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", os.Getenv("HIRES_PROXY"), "Proxy URL (e.g. http://127.0.0.1:7890), defaults to HIRES_PROXY env var")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	target := args[0]

	// If output file is specified but format is not, infer format from file extension
	if outputFile != "" && !cmd.Flags().Changed("format") {
		if inferred := inferFormatFromExtension(outputFile); inferred != "" {
			outputFormat = inferred
		}
	}

	if err := validateFlags(); err != nil {
		return err
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if deadline > 0 {
		cfg.Timing.Deadline = deadline
	}

	opts := scraper.Options{
		Headers:    parseHeaders(headers),
		WaitFor:    waitFor,
		WaitTarget: waitTarget,
		Timeout:    timeout,
		Selector:   selector,
		ShowUI:     showUI,
		ProxyURL:   proxyURL,
		Index:      index,
		Count:      count,
		Watch:      watch,
		SavePath:   savePath,
		SaveLevel:  saveLevel,
		SaveScope:  saveSelector,
		Config:     cfg,
		Logger:     logger,
	}

	s, ok := scraper.Get(site)
	if !ok {
		return fmt.Errorf("unknown site: %s", site)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	content, err := s.Scrape(ctx, target, opts)
	if err != nil {
		return fmt.Errorf("failed to scrape: %w", err)
	}

	// Format output
	outputContent, err := formatter.Format(content, outputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	// Output result
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(outputContent), 0644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", outputFile)
	} else {
		fmt.Print(outputContent)
	}

	return nil
}

func validateFlags() error {
	if !formatter.Supported(outputFormat) {
		return fmt.Errorf("invalid output format: %s", outputFormat)
	}

	validStrategies := map[string]bool{
		"":        true,
		"load":    true,
		"element": true,
		"time":    true,
		"idle":    true,
	}
	if !validStrategies[waitFor] {
		return fmt.Errorf("invalid wait strategy: %s", waitFor)
	}

	if waitFor == "element" && waitTarget == "" {
		return fmt.Errorf("--wait-target is required when using 'element' wait strategy")
	}

	if waitFor == "time" && waitTarget == "" {
		return fmt.Errorf("--wait-target is required when using 'time' wait strategy")
	}

	if index < 1 {
		return fmt.Errorf("--index must be at least 1")
	}

	if count < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	if deadline < 0 {
		return fmt.Errorf("--deadline must not be negative")
	}

	validLevels := map[string]bool{
		"full": true,
		"html": true,
		"css":  true,
	}
	if !validLevels[saveLevel] {
		return fmt.Errorf("invalid save level: %s", saveLevel)
	}

	if saveLevel == "css" && saveSelector == "" {
		return fmt.Errorf("--save-selector is required when using 'css' save level")
	}

	if watch && site != "google" {
		return fmt.Errorf("--watch is only valid with --site google")
	}

	return nil
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger logs to stderr; verbose switches to the human-readable
// development encoder at debug level.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// inferFormatFromExtension infers output format from file extension
func inferFormatFromExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".html", ".htm":
		return "html"
	case ".txt":
		return "text"
	case ".csv":
		return "csv"
	default:
		return ""
	}
}

// parseHeaders parses request header parameters
func parseHeaders(headerSlice []string) map[string]string {
	headersMap := make(map[string]string)
	for _, h := range headerSlice {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" {
				headersMap[key] = value
			}
		}
	}
	return headersMap
}
