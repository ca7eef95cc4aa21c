package reputation

// Config bounds the reputation ledger. Fixed at startup.
type Config struct {
	MaxCommentLength   int    `toml:"max_comment_length"`
	InitialReputation  uint32 `toml:"initial_reputation"`
	MaxReputationDelta uint32 `toml:"max_reputation_delta"`
	MaxHistoryLength   int    `toml:"max_history_length"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxCommentLength:   256,
		InitialReputation:  5000,
		MaxReputationDelta: 500,
		MaxHistoryLength:   100,
	}
}
