package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/config"
	"github.com/trialworks/criteria-engine/pkg/extractor"
	"github.com/trialworks/criteria-engine/pkg/llm"
	"github.com/trialworks/criteria-engine/pkg/logging"
	"github.com/trialworks/criteria-engine/pkg/mapper"
	"github.com/trialworks/criteria-engine/pkg/pipeline"
	"github.com/trialworks/criteria-engine/pkg/retry"
	"github.com/trialworks/criteria-engine/pkg/schema"
	"github.com/trialworks/criteria-engine/pkg/validator"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	inputPath := flag.String("input", "-", "eligibility criteria text file, or - for stdin")
	outputPath := flag.String("output", "-", "output file for the pipeline JSON, or - for stdout")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	if err := run(*configPath, *inputPath, *outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "criteria-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, inputPath, outputPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rawCriteria, err := readInput(inputPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	catalogue, err := loadCatalogue(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gen, err := llm.NewGenerator(&llm.Config{
		Provider:    cfg.LLM.Provider,
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		return err
	}

	cache, err := buildCache(cfg)
	if err != nil {
		return err
	}
	defer cache.Close() //nolint:errcheck

	var breaker *llm.CircuitBreaker
	if cfg.Retry.BreakerThreshold > 0 {
		breakerCfg := llm.DefaultCircuitBreakerConfig()
		breakerCfg.Threshold = cfg.Retry.BreakerThreshold
		breaker = llm.NewCircuitBreaker(breakerCfg)
	}

	backoff := retry.DefaultConfig()
	backoff.MaxRetries = cfg.Retry.BackoffAttempts
	structuredCfg := llm.StructuredConfig{
		MaxCorrections: cfg.Retry.MaxCorrections,
		Backoff:        backoff,
	}

	p := pipeline.New(
		extractor.New(gen, breaker, structuredCfg, logger),
		mapper.New(gen, breaker, cache, catalogue, structuredCfg, logger),
		validator.New(catalogue, validator.Thresholds{
			FailedBelow: cfg.Validator.FailedBelow,
			ReviewBelow: cfg.Validator.ReviewBelow,
			PassedAt:    cfg.Validator.PassedAt,
		}, logger),
		pipeline.Config{MaxConcurrent: cfg.Pipeline.MaxConcurrent},
		logger,
	)

	output, err := p.Run(ctx, rawCriteria)
	if err != nil {
		logger.Error("pipeline failed", zap.String("error", logging.SanitizeError(err)))
		return err
	}

	return writeOutput(outputPath, output)
}

// loadCatalogue resolves the schema catalogue source: a live Postgres, a
// catalogue file, or the built-in MIMIC-IV definition, in that precedence.
func loadCatalogue(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*schema.Catalogue, error) {
	if cfg.Schema.PostgresURL != "" {
		logger.Info("introspecting live catalogue",
			zap.String("url", logging.SanitizeConnectionString(cfg.Schema.PostgresURL)))
		return schema.FromPostgres(ctx, cfg.Schema.PostgresURL, logger)
	}
	if cfg.Schema.CataloguePath != "" {
		return schema.Load(cfg.Schema.CataloguePath)
	}
	return schema.Default(), nil
}

func buildCache(cfg *config.Config) (mapper.Cache, error) {
	if cfg.Cache.Backend == "sqlite" {
		return mapper.NewSQLiteCache(cfg.Cache.Path)
	}
	return mapper.NewMemoryCache(), nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeOutput(path string, output any) error {
	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	encoded = append(encoded, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
