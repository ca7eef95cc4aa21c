package domain

import (
	"encoding/json"
	"time"
)

// Extrinsic is one dispatched call as recorded in the journal. Failed calls
// are journaled too so the log reflects every submission, but only
// successful ones are replayed.
type Extrinsic struct {
	Seq    uint64          `json:"seq"`
	Origin string          `json:"origin"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	At     time.Time       `json:"at"`
}
