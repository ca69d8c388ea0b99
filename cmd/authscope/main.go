package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/AuthScope/internal/logger"
	"github.com/PentesterFlow/AuthScope/internal/output"
	"github.com/PentesterFlow/AuthScope/internal/shutdown"
	"github.com/PentesterFlow/AuthScope/pkg/pipeline"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	logLevel   string

	// Discover flags
	identity      string
	password      string
	loginURL      string
	workers       int
	probeTimeout  int
	rateLimit     float64
	outputFile    string
	storePath     string
	headful       bool
	settleSeconds int
	prettyOutput  bool
	skipTLSVerify bool
	extraHeaders  map[string]string
	extraCookies  map[string]string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authscope",
		Short: "AuthScope - Login-Call Capture & Endpoint Discovery",
		Long: `AuthScope finds an application's login page, scripts a login through a
real browser while recording network traffic, identifies the genuine login
API call, and probes for the authenticated API endpoints behind it.`,
		Version: version,
	}

	discoverCmd := &cobra.Command{
		Use:   "discover [target]",
		Short: "Run discovery against a target URL",
		Long:  "Locate the login page, capture the login call, and discover authenticated API endpoints.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDiscover,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Discover flags
	discoverCmd.Flags().StringVarP(&identity, "identity", "u", "", "Test account email or username")
	discoverCmd.Flags().StringVarP(&password, "password", "p", "", "Test account password")
	discoverCmd.Flags().StringVar(&loginURL, "login-url", "", "Skip location strategies and use this login page")
	discoverCmd.Flags().IntVarP(&workers, "workers", "w", 20, "Concurrent probe workers")
	discoverCmd.Flags().IntVarP(&probeTimeout, "probe-timeout", "t", 5, "Per-probe timeout in seconds")
	discoverCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 0, "Probe requests per second (0 = unlimited)")
	discoverCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	discoverCmd.Flags().StringVar(&storePath, "store", "", "Endpoint store database path (enables cross-run persistence)")
	discoverCmd.Flags().BoolVar(&headful, "headful", false, "Run the browser with a visible window")
	discoverCmd.Flags().IntVar(&settleSeconds, "settle", 2, "Seconds to wait for late XHR traffic after submit")
	discoverCmd.Flags().BoolVar(&prettyOutput, "pretty", true, "Indent JSON output")
	discoverCmd.Flags().BoolVar(&skipTLSVerify, "insecure", true, "Skip TLS certificate verification")
	discoverCmd.Flags().StringToStringVar(&extraHeaders, "header", nil, "Extra header on every request (key=value, repeatable)")
	discoverCmd.Flags().StringToStringVar(&extraCookies, "cookie", nil, "Cookie seeded into every session (name=value, repeatable)")

	rootCmd.AddCommand(discoverCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	target := args[0]

	config := pipeline.DefaultConfig()
	if configFile != "" {
		fileConfig, err := pipeline.LoadFromFile(configFile)
		if err != nil {
			return err
		}
		config = fileConfig
	}

	config.Target = target

	// Command-line flags take precedence over the config file.
	if cmd.Flags().Changed("identity") {
		config.Credentials.Identity = identity
	}
	if cmd.Flags().Changed("password") {
		config.Credentials.Password = password
	}
	if cmd.Flags().Changed("workers") {
		config.Probe.Workers = workers
	}
	if cmd.Flags().Changed("probe-timeout") {
		config.Probe.Timeout = time.Duration(probeTimeout) * time.Second
	}
	if cmd.Flags().Changed("rate-limit") {
		config.Probe.RequestsPerSecond = rateLimit
	}
	if cmd.Flags().Changed("settle") {
		config.Browser.SettleDelay = time.Duration(settleSeconds) * time.Second
	}
	if cmd.Flags().Changed("store") {
		config.StorePath = storePath
	}
	if cmd.Flags().Changed("insecure") {
		config.HTTP.SkipTLSVerify = skipTLSVerify
	}
	if cmd.Flags().Changed("header") {
		config.HTTP.Headers = extraHeaders
	}
	if cmd.Flags().Changed("cookie") {
		config.HTTP.Cookies = extraCookies
	}
	if loginURL != "" {
		config.LoginURL = loginURL
	}
	config.Browser.Headless = !headful
	config.Output.FilePath = outputFile
	config.Output.Pretty = prettyOutput
	config.LogLevel = logLevel
	config.Verbose = verbose

	log := newLogger(config)

	p, err := pipeline.New(config, log)
	if err != nil {
		return err
	}

	handler := shutdown.NewDefault()
	handler.RegisterFunc("pipeline", func() {
		if cerr := p.Close(); cerr != nil {
			log.WithError(cerr).Warn("pipeline close failed")
		}
	})

	result, err := p.Run(handler.Context())
	if err != nil {
		handler.Shutdown()
		return err
	}

	writer, err := output.Open(output.Config{
		Format:   config.Output.Format,
		Pretty:   config.Output.Pretty,
		FilePath: config.Output.FilePath,
	})
	if err != nil {
		handler.Shutdown()
		return err
	}
	handler.RegisterFunc("output", func() { writer.Close() })

	if werr := writer.WriteResult(result); werr != nil {
		handler.Shutdown()
		return werr
	}
	output.WriteSummary(os.Stderr, result)

	handler.Shutdown()
	return nil
}

func newLogger(config *pipeline.Config) *logger.Logger {
	level := logger.InfoLevel
	if parsed, err := logger.ParseLevel(config.LogLevel); err == nil {
		level = parsed
	}
	if config.Verbose {
		level = logger.DebugLevel
	}
	return logger.New(logger.Config{
		Level:  level,
		Pretty: true,
		Output: os.Stderr,
	})
}
