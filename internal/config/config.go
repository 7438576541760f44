// Package config loads process configuration from the environment and
// optional .env files.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jacentio/canopy/store"
)

// DefaultEnvFiles are read, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config is the process configuration shared by the CLI and the reaper.
type Config struct {
	Region   string `env:"AWS_REGION" envDefault:"us-east-1"`
	Endpoint string `env:"DYNAMODB_ENDPOINT"`

	RecordsTable string `env:"CANOPY_RECORDS_TABLE" envDefault:"canopy_records"`
	UniqueTable  string `env:"CANOPY_UNIQUE_TABLE" envDefault:"canopy_unique_constraints"`
	NumShards    int    `env:"CANOPY_NUM_SHARDS" envDefault:"1"`
	MaxDepth     int    `env:"CANOPY_MAX_DEPTH" envDefault:"10"`
	PurgeBatch   int    `env:"CANOPY_PURGE_BATCH" envDefault:"25"`

	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"canopy"`
}

// Load reads the existing files among envFiles (DefaultEnvFiles when none
// are given) and parses the environment. Variables already set win over
// file values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadEnv loads the files that exist and returns how many were read.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		_, err := os.Stat(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		existing = append(existing, file)
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Store returns the DynamoDB backend configuration.
func (c Config) Store() store.Config {
	sc := store.DefaultConfig()
	sc.RecordsTable = c.RecordsTable
	sc.UniqueTable = c.UniqueTable
	sc.NumShards = c.NumShards
	return sc
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Logger builds a JSON logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// DynamoClient builds a DynamoDB client for Region, pointed at Endpoint when
// one is set (e.g. DynamoDB Local).
func (c Config) DynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}), nil
}

// Backend builds the DynamoDB store backend.
func (c Config) Backend(ctx context.Context) (*store.DynamoBackend, error) {
	client, err := c.DynamoClient(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewDynamoBackend(client, c.Store()), nil
}
