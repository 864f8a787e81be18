// Package main implements the natscript command, an interactive runner for
// plain-text NATS messaging scripts: it parses a script into actions and
// executes them against the broker, streaming log records to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/natscript/action"
	"github.com/c360/natscript/config"
	"github.com/c360/natscript/logrecord"
	"github.com/c360/natscript/metric"
	"github.com/c360/natscript/natsclient"
	"github.com/c360/natscript/script"
	"github.com/c360/natscript/session"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "natscript"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.LogLevel != "" {
		cfg.LogLevel = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.LogFormat = cliCfg.LogFormat
	}
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	text, err := os.ReadFile(cliCfg.ScriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	actions := script.Parse(string(text))
	if len(actions) == 0 {
		return fmt.Errorf("script contains no runnable actions")
	}

	if cliCfg.List {
		for _, a := range actions {
			listAction(a)
		}
		return nil
	}

	metrics := metric.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	connector := natsclient.NewConnector(
		natsclient.WithName(appName),
		natsclient.WithTimeout(cfg.ConnectTimeout),
	)
	sess := session.New(connector,
		session.WithLogger(logger),
		session.WithDefaultTimeout(cfg.RequestTimeout),
		session.WithMetrics(metrics),
	)
	defer sess.Reset()

	sink := logrecord.SinkFunc(func(line string) { fmt.Println(line) })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streaming := 0
	for _, a := range actions {
		if cliCfg.Line >= 0 && a.SourceLine != cliCfg.Line {
			continue
		}
		key := fmt.Sprintf("%s:%d", cliCfg.ScriptPath, a.SourceLine)
		if err := sess.Run(ctx, a, sink, key); err != nil {
			logger.Error("action failed", "kind", a.Kind.String(), "line", a.SourceLine, "error", err)
			continue
		}
		if a.Kind == action.KindSubscribe || a.Kind == action.KindReply {
			streaming++
		}
	}

	if streaming > 0 {
		logger.Info("streaming contexts active, waiting for interrupt", "count", streaming)
		<-ctx.Done()
	}
	return nil
}

func listAction(a action.Action) {
	switch a.Kind {
	case action.KindJetStreamPull:
		fmt.Printf("%4d  %-14s %s  stream=%s durable=%s batch=%d\n",
			a.SourceLine, a.Kind, a.Server, a.Stream, a.Durable, a.BatchSize)
	default:
		fmt.Printf("%4d  %-14s %s  %s\n", a.SourceLine, a.Kind, a.Server, a.Subject)
	}
}
