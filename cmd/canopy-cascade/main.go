// Command canopy-cascade is the Lambda function attached to the pages and
// blocks table streams. When a page expires it expires the page's sub-pages
// and blocks.
//
// Table names and sharding are read from CANOPY_DYNAMO_* environment
// variables, the same ones the canopy command uses. With
// CANOPY_PARTIAL_BATCH=true the function reports failed records individually;
// the event source mapping must then enable ReportBatchItemFailures.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"

	"github.com/jacentio/canopy/dynamo"
	"github.com/jacentio/canopy/stream"
)

type config struct {
	PartialBatch bool          `env:"PARTIAL_BATCH"`
	LogLevel     slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	Dynamo       dynamo.Config `envPrefix:"DYNAMO_"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CANOPY_"}); err != nil {
		logger.Error("parse env", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("load AWS config", "error", err)
		os.Exit(1)
	}

	backend := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo, dynamo.WithLogger(logger))
	h := stream.NewHandler(backend, backend.Registry(), logger)
	logger.Info("cascade handler starting",
		"pagesTable", backend.Config().PagesTable,
		"relationshipTable", backend.Config().RelationshipTable,
		"numShards", backend.Config().NumShards,
		"relationships", len(backend.Registry().AllRelationships()),
		"partialBatch", cfg.PartialBatch,
	)

	if cfg.PartialBatch {
		lambda.Start(h.HandleBatch)
		return
	}
	lambda.Start(h.HandleCascadeDelete)
}
