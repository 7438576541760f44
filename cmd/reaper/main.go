// Command reaper is the Lambda entry point that purges the tombstoned
// children of records removed by DynamoDB TTL.
package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/internal/config"
	"github.com/jacentio/canopy/metrics"
	"github.com/jacentio/canopy/stream"
)

func main() {
	handler, err := newHandler(context.Background())
	if err != nil {
		log.Fatalf("reaper: %v", err)
	}
	lambda.Start(handler.HandleRemove)
}

func newHandler(ctx context.Context) (*stream.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	backend, err := cfg.Backend(ctx)
	if err != nil {
		return nil, err
	}

	h := stream.NewHandler(backend, entity.DefaultRegistry(), cfg.Logger(os.Stdout))
	h.SetBatchSize(cfg.PurgeBatch)
	h.SetMetrics(metrics.New(cfg.MetricsNamespace, prometheus.DefaultRegisterer))
	return h, nil
}
