package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/webharvest/webharvest/internal/config"
	"github.com/webharvest/webharvest/internal/httpapi"
	"github.com/webharvest/webharvest/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	cfgFile           string
	seedURLs          []string
	maxDepth          int
	concurrency       int
	outputDir         string
	dryRun            bool
	maxPages          int
	userAgent         string
	timeout           time.Duration
	baseDelay         time.Duration
	jitter            time.Duration
	randomSeed        int64
	allowedHosts      []string
	allowedPathPrefix []string
	listenAddr        string
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd is the parent command; the actual work happens in its subcommands
// (crawl, scrape, serve).
var rootCmd = &cobra.Command{
	Use:   "webharvest",
	Short: "A self-hosted web scraping and crawling service.",
	Long: `webharvest crawls and scrapes documentation and web content, converting
pages into clean Markdown, HTML, links, or screenshots for downstream
retrieval-augmented generation and knowledge-base workflows.

Use "crawl" for a multi-page breadth-first mirror, "scrape" for a single
URL, or "serve" to expose the HTTP and MCP job-submission APIs.`,
}

// printConfigSummary prints the resolved Config, preserving the
// teacher's original single-command diagnostic output.
func printConfigSummary(cfg config.Config) {
	fmt.Printf("Configuration initialized successfully\n")
	if len(cfg.SeedURLs()) > 0 {
		var urls []string
		for _, u := range cfg.SeedURLs() {
			urls = append(urls, u.String())
		}
		fmt.Printf("Seed URLs: %s\n", strings.Join(urls, ", "))
	}
	if len(cfg.AllowedHosts()) > 0 {
		var hosts []string
		for host := range cfg.AllowedHosts() {
			hosts = append(hosts, host)
		}
		fmt.Printf("Allowed Hosts: %s\n", strings.Join(hosts, ", "))
	}
	if len(cfg.AllowedPathPrefix()) > 0 {
		fmt.Printf("Allowed Path Prefixes: %s\n", strings.Join(cfg.AllowedPathPrefix(), ", "))
	}
	fmt.Printf("Max Depth: %d\n", cfg.MaxDepth())
	fmt.Printf("Max Pages: %d\n", cfg.MaxPages())
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency())
	fmt.Printf("Base Delay: %v\n", cfg.BaseDelay())
	fmt.Printf("Jitter: %v\n", cfg.Jitter())
	fmt.Printf("Random Seed: %d\n", cfg.RandomSeed())
	fmt.Printf("Timeout: %v\n", cfg.Timeout())
	fmt.Printf("User Agent: %s\n", cfg.UserAgent())
	fmt.Printf("Output Directory: %s\n", cfg.OutputDir())
	fmt.Printf("Dry Run: %t\n", cfg.DryRun())
}

// runCrawl resolves seedURLs/flags into a Config, writes it to a temp config
// file (ExecuteCrawling only accepts a path, matching the teacher's
// file-driven scheduler entrypoint), and drives the crawl to completion.
func runCrawl(cmd *cobra.Command, args []string) {
	if len(seedURLs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
		cmd.Usage()
		os.Exit(1)
	}

	parsedURLs, err := parseSeedURLs(seedURLs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cfg := InitConfig(parsedURLs)
	printConfigSummary(cfg)

	tmpConfigPath, err := writeTempConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing scheduler config: %s\n", err)
		os.Exit(1)
	}
	defer os.Remove(tmpConfigPath)

	sched := scheduler.NewScheduler()
	execution, err := sched.ExecuteCrawling(tmpConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crawl failed: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Crawl finished: %d page(s) written\n", len(execution.WriteResults))
}

// runScrape performs a single-URL, non-crawling fetch: maxDepth=0 ensures
// only the seed URL itself is admitted to the frontier.
func runScrape(cmd *cobra.Command, args []string) {
	if len(seedURLs) != 1 {
		fmt.Fprintf(os.Stderr, "Error: scrape requires exactly one --seed-url\n")
		cmd.Usage()
		os.Exit(1)
	}

	parsedURLs, err := parseSeedURLs(seedURLs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cfg, err := InitConfigWithError(parsedURLs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	cfg, err = config.WithDefault(parsedURLs).
		WithMaxDepth(0).
		WithMaxPages(1).
		WithOutputDir(cfg.OutputDir()).
		WithUserAgent(cfg.UserAgent()).
		WithTimeout(cfg.Timeout()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	printConfigSummary(cfg)

	tmpConfigPath, err := writeTempConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing scheduler config: %s\n", err)
		os.Exit(1)
	}
	defer os.Remove(tmpConfigPath)

	sched := scheduler.NewScheduler()
	execution, err := sched.ExecuteCrawling(tmpConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scrape failed: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Scrape finished: %d page(s) written\n", len(execution.WriteResults))
}

// runServe starts the HTTP job-submission API (which also exposes the MCP
// JSON-RPC tool-call surface) and blocks until the process is signaled.
func runServe(cmd *cobra.Command, args []string) {
	server := httpapi.NewServer(listenAddr)
	fmt.Printf("Listening on %s\n", listenAddr)
	if err := server.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %s\n", err)
		os.Exit(1)
	}
}

// writeTempConfig serializes cfg to a throwaway JSON file so it can be
// handed to scheduler.ExecuteCrawling, which reads config from disk.
func writeTempConfig(cfg config.Config) (string, error) {
	f, err := os.CreateTemp("", "webharvest-cfg-*.json")
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()
	if err := cfg.ToFile(path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Mirror a site breadth-first up to the configured depth/page limits.",
	Run:   runCrawl,
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch and convert a single URL.",
	Run:   runScrape,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job-submission API and MCP JSON-RPC tool surface.",
	Run:   runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// It exits the process with status 1 when the command returns an error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Here you will define your flags and configuration settings.
	// Cobra supports persistent flags, which, if defined here,
	// will be available to all subcommands in the webharvest application.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 5, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 3, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for crawled content")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 keeps the config default)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (defaults to seed host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address for the HTTP API server to bind")

	rootCmd.AddCommand(crawlCmd, scrapeCmd, serveCmd)
}

// InitConfig reads the config file if one is set, otherwise builds the
// config from CLI flags over defaults. No environment variable is read.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError is InitConfig returning errors instead of exiting.
// A config file, when set, is used as-is and the CLI flags are ignored.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	// Build config from CLI flags using the With... functions with method chaining
	fmt.Println("No config file specified. Using default flag values")

	// Start with default config using provided seed URLs and apply overrides using method chaining
	configBuilder := config.WithDefault(seedUrls)

	// Override with CLI flag values where provided
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}

	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	concurrency = 0
	outputDir = ""
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}

func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}
