// Command canopy inspects and edits a page tree from the terminal.
//
// It talks either to the REST service or directly to the DynamoDB tables,
// selected by CANOPY_BACKEND. Every other setting is read from CANOPY_*
// environment variables:
//
//	CANOPY_BACKEND            http (default) or dynamo
//	CANOPY_USER               acting user recorded in audit fields
//	CANOPY_LOG_LEVEL          debug, info, warn or error
//	CANOPY_HTTP_BASE_URL      REST service root
//	CANOPY_DYNAMO_PAGES_TABLE DynamoDB pages table, and so on
//
// Usage:
//
//	canopy [-metrics] <command> [flags] [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/canopy/dynamo"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/transport"
	"github.com/jacentio/canopy/tree"
	"github.com/jacentio/canopy/usecase"
)

const (
	backendHTTP   = "http"
	backendDynamo = "dynamo"
)

// config is loaded from CANOPY_* environment variables.
type config struct {
	Backend  string           `env:"BACKEND" envDefault:"http"`
	User     string           `env:"USER" envDefault:"cli"`
	LogLevel string           `env:"LOG_LEVEL" envDefault:"info"`
	HTTP     transport.Config `envPrefix:"HTTP_"`
	Dynamo   dynamo.Config    `envPrefix:"DYNAMO_"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CANOPY_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Backend {
	case backendHTTP, backendDynamo:
	default:
		return cfg, fmt.Errorf("unknown backend %q (want %s or %s)", cfg.Backend, backendHTTP, backendDynamo)
	}
	return cfg, nil
}

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	showMetrics := flag.Bool("metrics", false, "Print transport metrics after the command")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ll := &slog.LevelVar{}
	if err := ll.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    os.Getenv("NO_COLOR") != "",
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	app, err := newApp(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer app.tree.Close()

	err = app.run(ctx, flag.Arg(0), flag.Args()[1:])
	if *showMetrics {
		printMetrics(reg)
	}
	return err
}

// app is the wired stack a command runs against.
type app struct {
	user   string
	tree   *tree.Coordinator
	pages  *usecase.Pages
	logger *slog.Logger
}

func newApp(ctx context.Context, cfg config, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	var (
		pagesAPI  transport.Pages
		blocksAPI transport.Blocks
	)
	switch cfg.Backend {
	case backendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		backend := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo, dynamo.WithLogger(logger))
		pagesAPI, blocksAPI = backend.Pages(), backend.Blocks()
	default:
		client := transport.New(cfg.HTTP,
			transport.WithMetrics(transport.NewMetrics(reg)),
			transport.WithLogger(logger),
		)
		pagesAPI, blocksAPI = client.Pages(), client.Blocks()
	}

	c := tree.New(
		store.NewPageStore(pagesAPI, logger),
		store.NewBlockStore(blocksAPI, logger),
		logger,
	)
	return &app{
		user:   cfg.User,
		tree:   c,
		pages:  usecase.NewPages(c, pagesAPI, usecase.WithLogger(logger)),
		logger: logger,
	}, nil
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: canopy [-metrics] <command> [flags] [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-12s %s\n", c.name, c.help)
	}
	fmt.Fprintf(out, "\nflags:\n")
	flag.PrintDefaults()
}

func printMetrics(g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		slog.Warn("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(os.Stderr, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				mean := time.Duration(0)
				if h.GetSampleCount() > 0 {
					mean = time.Duration(h.GetSampleSum() / float64(h.GetSampleCount()) * float64(time.Second))
				}
				fmt.Fprintf(os.Stderr, "%s%s count=%d mean=%s\n", mf.GetName(), labels, h.GetSampleCount(), mean)
			}
		}
	}
}
