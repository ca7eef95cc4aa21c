package node

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/clawchain/clawmarket/internal/domain"
)

// Genesis is the initial state the ledger is built from.
type Genesis struct {
	Balances map[domain.AccountID]domain.Balance `yaml:"balances"`
}

// DevGenesis endows three development accounts.
func DevGenesis() Genesis {
	return Genesis{Balances: map[domain.AccountID]domain.Balance{
		"alice":   10000,
		"bob":     10000,
		"charlie": 10000,
	}}
}

// LoadGenesis reads a YAML genesis file:
//
//	balances:
//	  alice: 10000
//	  bob: 10000
func LoadGenesis(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Genesis{}, fmt.Errorf("parse genesis %s: %w", path, err)
	}
	for acc, bal := range g.Balances {
		if acc == "" {
			return Genesis{}, fmt.Errorf("genesis %s: empty account name", path)
		}
		if bal == 0 {
			return Genesis{}, fmt.Errorf("genesis %s: account %s: %w", path, acc, domain.ErrZeroAmount)
		}
	}
	return g, nil
}

// Accounts returns the endowed accounts in name order.
func (g Genesis) Accounts() []domain.AccountID {
	out := make([]domain.AccountID, 0, len(g.Balances))
	for acc := range g.Balances {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
