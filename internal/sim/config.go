// Package sim generates synthetic vote traffic against a running engine,
// then checks that the leaderboard and score reads line up with what was
// submitted.
package sim

import "time"

// Config controls a simulation run.
type Config struct {
	BaseURL  string
	NumNFTs  int
	NumUsers int
	NumVotes int
	// SliderShare is the fraction of votes submitted as slider ratings;
	// the rest are head-to-head comparisons.
	SliderShare float64
	// FireShare is the fraction of head-to-head votes flagged as super votes.
	FireShare float64
	TopN      int
	Workers   int
	Timeout   time.Duration
	// SettleDelay is how long to wait after submission before reading
	// scores, giving the recompute workers time to drain the queue.
	SettleDelay time.Duration
	Verbose     bool
}

// Stats accumulates counters over a run.
type Stats struct {
	NFTsRegistered  int
	VotesGenerated  int
	VotesSubmitted  int
	VotesAccepted   int
	VotesDuplicate  int
	VotesFailed     int
	ScoresPublished int
	ScoresAwaiting  int
	TopEntries      int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
