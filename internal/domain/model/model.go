// Package model contains the domain records passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidVote marks a vote event whose shape is malformed. Such events are
// rejected before any computation, never coerced.
var ErrInvalidVote = errors.New("invalid vote event")

// VoteKind distinguishes the two vote shapes.
type VoteKind string

const (
	KindHeadToHead VoteKind = "h2h"
	KindSlider     VoteKind = "slider"
)

// VoteEvent is an immutable, append-only fact. Exactly one of the
// head-to-head fields (NFTB + WinnerID) or the Slider field is populated.
// Corrections are new compensating events, never edits.
type VoteEvent struct {
	EventID  string
	VoterID  string
	NFTA     string
	NFTB     string
	WinnerID string
	Slider   *float64
	Fire     bool
	TS       time.Time
}

// Kind reports the vote shape. Only meaningful after Validate.
func (e *VoteEvent) Kind() VoteKind {
	if e.Slider != nil {
		return KindSlider
	}
	return KindHeadToHead
}

// Validate checks the event shape.
func (e *VoteEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidVote)
	}
	if e.VoterID == "" {
		return fmt.Errorf("%w: missing voter id", ErrInvalidVote)
	}
	if e.NFTA == "" {
		return fmt.Errorf("%w: missing nft id", ErrInvalidVote)
	}

	h2h := e.NFTB != "" || e.WinnerID != ""
	slider := e.Slider != nil

	switch {
	case h2h && slider:
		return fmt.Errorf("%w: both winner and slider populated", ErrInvalidVote)
	case !h2h && !slider:
		return fmt.Errorf("%w: neither winner nor slider populated", ErrInvalidVote)
	case h2h:
		if e.NFTB == "" || e.WinnerID == "" {
			return fmt.Errorf("%w: head-to-head vote needs both nfts and a winner", ErrInvalidVote)
		}
		if e.NFTA == e.NFTB {
			return fmt.Errorf("%w: head-to-head vote needs two distinct nfts", ErrInvalidVote)
		}
		if e.WinnerID != e.NFTA && e.WinnerID != e.NFTB {
			return fmt.Errorf("%w: winner must be one of the matched nfts", ErrInvalidVote)
		}
	case slider:
		if v := *e.Slider; v < 0 || v > 100 {
			return fmt.Errorf("%w: slider value %v out of [0,100]", ErrInvalidVote, v)
		}
	}
	return nil
}

// NFTStats is the durable numeric state attached to one NFT.
//
// Invariants: Wins+Losses <= HeadToHeadVotes; EloUncertainty never below the
// configured floor; SliderCount == 0 exactly when no valid slider ratings
// contribute to SliderMean.
type NFTStats struct {
	ID string

	EloMean        float64
	EloUncertainty float64

	HeadToHeadVotes int64
	Wins            int64
	Losses          int64

	// SliderMean is the reliability-weighted mean of normalized slider
	// ratings; SliderWeight is the weight mass behind it. Meaningless
	// while SliderCount is zero.
	SliderMean   float64
	SliderCount  int64
	SliderWeight float64

	FireCount  int64
	TotalVotes int64

	Active    bool
	Version   int64
	UpdatedAt time.Time
}

// NewNFTStats returns the record an NFT starts with at registration.
func NewNFTStats(id string, initialEloMean, initialEloUncertainty float64, now time.Time) NFTStats {
	return NFTStats{
		ID:             id,
		EloMean:        initialEloMean,
		EloUncertainty: initialEloUncertainty,
		Active:         true,
		UpdatedAt:      now,
	}
}

// HasSliderData reports whether any valid slider rating contributes to the mean.
func (s *NFTStats) HasSliderData() bool { return s.SliderCount > 0 }

// FireRate is the share of this NFT's votes flagged as fire.
func (s *NFTStats) FireRate() float64 {
	if s.TotalVotes == 0 {
		return 0
	}
	return float64(s.FireCount) / float64(s.TotalVotes)
}

// MeanRaterReliability is the average reliability weight behind the slider mean.
func (s *NFTStats) MeanRaterReliability() float64 {
	if s.SliderCount == 0 {
		return 1
	}
	return s.SliderWeight / float64(s.SliderCount)
}

// UserStats is the durable numeric state attached to one user. The slider
// fields form a streaming Welford accumulator over the user's raw inputs and
// calibrate that user's personal rating scale.
type UserStats struct {
	ID string

	SliderCount int64
	SliderMean  float64
	SliderM2    float64

	Reliability      float64
	ReliabilityCount int64

	Version   int64
	UpdatedAt time.Time
}

// NewUserStats returns the record a user starts with at their first vote.
func NewUserStats(id string, now time.Time) UserStats {
	return UserStats{ID: id, Reliability: 1.0, UpdatedAt: now}
}

// SliderStd is the standard deviation of the user's raw slider inputs.
func (u *UserStats) SliderStd() float64 {
	if u.SliderCount < 2 {
		return 0
	}
	return math.Sqrt(u.SliderM2 / float64(u.SliderCount))
}

// ScoreRecord is a published (or candidate) composite score.
type ScoreRecord struct {
	NFTID           string    `json:"nft_id"`
	POA             float64   `json:"poa"`
	Confidence      float64   `json:"confidence"`
	Provisional     bool      `json:"provisional"`
	EloComponent    float64   `json:"elo_component"`
	SliderComponent float64   `json:"slider_component"`
	FireComponent   float64   `json:"fire_component"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Progress reports how far an NFT is from the publish minimums.
type Progress struct {
	HeadToHead        int `json:"h2h"`
	UniqueOpponents   int `json:"unique_opponents"`
	SliderRatings     int `json:"slider_ratings"`
	UniqueSliderUsers int `json:"unique_slider_users"`

	MinHeadToHead        int `json:"min_h2h"`
	MinUniqueOpponents   int `json:"min_unique_opponents"`
	MinSliderRatings     int `json:"min_slider_ratings"`
	MinUniqueSliderUsers int `json:"min_unique_slider_users"`
}

// Met reports whether every minimum-data threshold is satisfied.
func (p Progress) Met() bool {
	return p.HeadToHead >= p.MinHeadToHead &&
		p.UniqueOpponents >= p.MinUniqueOpponents &&
		p.SliderRatings >= p.MinSliderRatings &&
		p.UniqueSliderUsers >= p.MinUniqueSliderUsers
}

// ScoreStatus tags a ScoreLookup.
type ScoreStatus string

const (
	StatusScored       ScoreStatus = "scored"
	StatusAwaitingData ScoreStatus = "awaiting_data"
)

// ScoreLookup is the tagged read result for an NFT's score. An NFT below the
// publish minimums reports awaiting_data with progress; it never reports a
// zero score.
type ScoreLookup struct {
	Status   ScoreStatus  `json:"status"`
	Score    *ScoreRecord `json:"score,omitempty"`
	Progress *Progress    `json:"progress,omitempty"`
}

// Scored wraps a published record.
func Scored(rec ScoreRecord) ScoreLookup {
	return ScoreLookup{Status: StatusScored, Score: &rec}
}

// AwaitingData wraps threshold progress.
func AwaitingData(p Progress) ScoreLookup {
	return ScoreLookup{Status: StatusAwaitingData, Progress: &p}
}
