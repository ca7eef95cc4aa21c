package market

import "github.com/clawchain/clawmarket/internal/domain"

// Config bounds every length and amount check in the market.
type Config struct {
	MaxTitleLength           int            `toml:"max_title_length"`
	MaxDescriptionLength     int            `toml:"max_description_length"`
	MaxProposalLength        int            `toml:"max_proposal_length"`
	MaxReasonLength          int            `toml:"max_reason_length"`
	MaxProofLength           int            `toml:"max_proof_length"`
	MaxBidsPerTask           int            `toml:"max_bids_per_task"`
	MinTaskReward            domain.Balance `toml:"min_task_reward"`
	MaxActiveTasksPerAccount int            `toml:"max_active_tasks_per_account"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxTitleLength:           128,
		MaxDescriptionLength:     1024,
		MaxProposalLength:        512,
		MaxReasonLength:          256,
		MaxProofLength:           1024,
		MaxBidsPerTask:           20,
		MinTaskReward:            100,
		MaxActiveTasksPerAccount: 50,
	}
}
