package sim

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Aesthetic archetypes. Each NFT is assigned a hidden appeal; votes are
// drawn so that higher-appeal NFTs win comparisons and draw higher slider
// ratings more often, which gives the engine a ground truth to recover.
const (
	appealScale  = 1_000_000
	sliderNoise  = 18.0
	upsetChance  = 0.15
	archetypeMod = 4
)

// Vote is the wire payload for POST /votes.
type Vote struct {
	EventID     string   `json:"event_id"`
	VoterID     string   `json:"voter_id"`
	NFTA        string   `json:"nft_a"`
	NFTB        string   `json:"nft_b,omitempty"`
	WinnerID    string   `json:"winner_id,omitempty"`
	SliderValue *float64 `json:"slider_value,omitempty"`
	Fire        bool     `json:"fire,omitempty"`
	TS          string   `json:"ts,omitempty"`
}

type nft struct {
	id     string
	appeal float64 // hidden ground truth in [0, 100]
}

func randFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(appealScale))
	return float64(n.Int64()) / float64(appealScale)
}

func randIndex(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateNFTs assigns each NFT an appeal from one of four archetypes so
// the population is not uniform: a few standouts, a few duds, and a bulk
// of middling pieces.
func generateNFTs(count int) []nft {
	nfts := make([]nft, count)
	for i := range nfts {
		var appeal float64
		switch i % archetypeMod {
		case 0: // standout
			appeal = 75 + randFloat()*25
		case 1: // dud
			appeal = randFloat() * 25
		default: // middling
			appeal = 30 + randFloat()*40
		}
		nfts[i] = nft{id: "nft_" + uuid.NewString(), appeal: appeal}
	}
	return nfts
}

func generateUsers(count int) []string {
	users := make([]string, count)
	for i := range users {
		users[i] = "user_" + uuid.NewString()
	}
	return users
}

// generateVotes draws NumVotes events over the population. Head-to-head
// winners follow appeal with a fixed upset chance; slider values are the
// appeal plus noise, clamped to [0, 100].
func generateVotes(cfg *Config, nfts []nft, users []string) []Vote {
	votes := make([]Vote, cfg.NumVotes)
	for i := range votes {
		voter := users[randIndex(len(users))]
		eventID := "sim_" + strconv.Itoa(i) + "_" + uuid.NewString()
		ts := time.Now().UTC().Format(time.RFC3339)

		if randFloat() < cfg.SliderShare {
			a := nfts[randIndex(len(nfts))]
			v := a.appeal + (randFloat()*2-1)*sliderNoise
			if v < 0 {
				v = 0
			}
			if v > 100 {
				v = 100
			}
			votes[i] = Vote{
				EventID:     eventID,
				VoterID:     voter,
				NFTA:        a.id,
				SliderValue: &v,
				TS:          ts,
			}
			continue
		}

		a := nfts[randIndex(len(nfts))]
		b := nfts[randIndex(len(nfts))]
		for b.id == a.id {
			b = nfts[randIndex(len(nfts))]
		}
		winner := a
		if b.appeal > a.appeal {
			winner = b
		}
		if randFloat() < upsetChance {
			if winner.id == a.id {
				winner = b
			} else {
				winner = a
			}
		}
		votes[i] = Vote{
			EventID:  eventID,
			VoterID:  voter,
			NFTA:     a.id,
			NFTB:     b.id,
			WinnerID: winner.id,
			Fire:     randFloat() < cfg.FireShare,
			TS:       ts,
		}
	}
	return votes
}
