package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/proofofaesthetic/poa-engine/internal/sim"
	"github.com/proofofaesthetic/poa-engine/pkg/logger"
)

const (
	defaultNFTs        = 200
	defaultUsers       = 500
	defaultVotes       = 20000
	defaultTopN        = 50
	defaultSliderShare = 0.4
	defaultFireShare   = 0.1
	defaultTimeout     = 30 * time.Second
	defaultSettleDelay = 5 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the engine")
		numNFTs     = flag.Int("nfts", defaultNFTs, "Number of NFTs to register")
		numUsers    = flag.Int("users", defaultUsers, "Number of simulated voters")
		numVotes    = flag.Int("votes", defaultVotes, "Number of votes to generate and submit")
		sliderShare = flag.Float64("slider-share", defaultSliderShare, "Fraction of votes that are slider ratings")
		fireShare   = flag.Float64("fire-share", defaultFireShare, "Fraction of head-to-head votes flagged as super votes")
		topN        = flag.Int("top", defaultTopN, "Leaderboard size to fetch")
		workers     = flag.Int("workers", runtime.NumCPU()*2, "Number of concurrent submitters")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle      = flag.Duration("settle", defaultSettleDelay, "Wait after submission before reading scores")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &sim.Config{
		BaseURL:     *baseURL,
		NumNFTs:     *numNFTs,
		NumUsers:    *numUsers,
		NumVotes:    *numVotes,
		SliderShare: *sliderShare,
		FireShare:   *fireShare,
		TopN:        *topN,
		Workers:     *workers,
		Timeout:     *timeout,
		SettleDelay: *settle,
		Verbose:     *verbose,
	}

	if err := sim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
