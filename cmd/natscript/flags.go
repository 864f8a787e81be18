package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ScriptPath  string
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	List        bool
	RunAll      bool
	Line        int
	ShowVersion bool
	ShowHelp    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ScriptPath, "script",
		getEnv("NATSCRIPT_SCRIPT", ""),
		"Path to script file (env: NATSCRIPT_SCRIPT)")

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("NATSCRIPT_CONFIG", ""),
		"Path to configuration file (env: NATSCRIPT_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("NATSCRIPT_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: NATSCRIPT_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("NATSCRIPT_LOG_FORMAT", ""),
		"Log format: json, text (env: NATSCRIPT_LOG_FORMAT)")

	flag.BoolVar(&cfg.List, "list", false, "List parsed actions and exit")
	flag.BoolVar(&cfg.RunAll, "all", false, "Execute every action in document order")
	flag.IntVar(&cfg.Line, "line", -1, "Execute the action whose command keyword is on this zero-based line")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ScriptPath == "" {
		return fmt.Errorf("no script file given (use -script)")
	}
	if _, err := os.Stat(cfg.ScriptPath); err != nil {
		return fmt.Errorf("script file not found: %s", cfg.ScriptPath)
	}
	if !cfg.List && !cfg.RunAll && cfg.Line < 0 {
		return fmt.Errorf("nothing to do: use -list, -all or -line")
	}
	if cfg.RunAll && cfg.Line >= 0 {
		return fmt.Errorf("-all and -line are mutually exclusive")
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - script-driven NATS action runner

Usage: %s -script FILE [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # List the actions a script contains
  %s -script demo.nats -list

  # Execute the action on line 12
  %s -script demo.nats -line 12

  # Execute every action; subscriptions stay active until interrupt
  %s -script demo.nats -all

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
