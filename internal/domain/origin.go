package domain

import (
	"fmt"
	"strings"
)

// AccountID identifies an account on the ledger.
type AccountID string

// Balance is an amount of the native currency, in base units.
type Balance = uint64

// Origin is the capability-tagged identity of the caller of an operation.
// A root origin carries no account.
type Origin struct {
	account AccountID
	root    bool
}

// Signed returns an origin for an ordinary account.
func Signed(account AccountID) Origin {
	return Origin{account: account}
}

// Root returns the privileged origin.
func Root() Origin {
	return Origin{root: true}
}

// IsRoot reports whether the origin is privileged.
func (o Origin) IsRoot() bool { return o.root }

// Signer returns the calling account, or ErrBadOrigin for root or empty origins.
func (o Origin) Signer() (AccountID, error) {
	if o.root || o.account == "" {
		return "", ErrBadOrigin
	}
	return o.account, nil
}

// EnsureRoot fails with ErrBadOrigin unless the origin is privileged.
func (o Origin) EnsureRoot() error {
	if !o.root {
		return ErrBadOrigin
	}
	return nil
}

// String renders the origin for logs and the extrinsic journal.
func (o Origin) String() string {
	if o.root {
		return "root"
	}
	return fmt.Sprintf("signed:%s", o.account)
}

// ParseOrigin is the inverse of Origin.String.
func ParseOrigin(s string) (Origin, error) {
	if s == "root" {
		return Root(), nil
	}
	acc, ok := strings.CutPrefix(s, "signed:")
	if !ok || acc == "" {
		return Origin{}, fmt.Errorf("parse origin %q: %w", s, ErrBadOrigin)
	}
	return Signed(AccountID(acc)), nil
}
