// Package main analyzes a single token, or drains one page of the poll feed,
// and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bsc-token-scout/internal/app"
	"bsc-token-scout/internal/config"
	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/logging"
	"bsc-token-scout/internal/scoring"
)

type result struct {
	Address   string           `json:"address"`
	Token     *domain.Token    `json:"token,omitempty"`
	Analysis  *domain.Analysis `json:"analysis"`
	Score     domain.Score     `json:"score"`
	Promising bool             `json:"promising"`
}

func main() {
	_ = config.LoadEnvFile(".env")

	address := flag.String("address", "", "Token address to analyze")
	discover := flag.Bool("discover", false, "Poll the explorer once and list new tokens")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	logger := logging.Setup("bsc-token-scout-analyze", *logLevel, "text")
	if *address == "" && !*discover {
		fmt.Fprintln(os.Stderr, "usage: analyze -address 0x... | -discover")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	// One-shot runs never need the push feed or a shared store.
	cfg.FeedMode = config.FeedPolling
	cfg.Storage = config.StorageMemory
	cfg.ClickhouseDSN = ""

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *discover {
		tokens, err := a.Service.GetNewTokens(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("discover")
		}
		if err := enc.Encode(tokens); err != nil {
			logger.Fatal().Err(err).Msg("encode")
		}
		return
	}

	analysis, err := a.Service.AnalyzeToken(ctx, *address)
	if err != nil {
		logger.Fatal().Err(err).Msg("analyze")
	}
	out := result{
		Address:   domain.CanonicalAddress(*address),
		Analysis:  analysis,
		Score:     a.Service.CalculateScore(analysis),
		Promising: scoring.IsPromising(analysis),
	}
	if meta, err := a.Metadata.Fetch(ctx, out.Address); err == nil {
		out.Token = meta.NewToken(cfg.Chain.Name, time.Now().UnixMilli())
	}
	if err := enc.Encode(out); err != nil {
		logger.Fatal().Err(err).Msg("encode")
	}
}
