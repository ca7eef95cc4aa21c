// Package credit implements the native currency ledger that holds task escrow.
// Every movement creates matched DEBIT/CREDIT journal entries, so
// SUM(debits) == SUM(credits) is an invariant. An account's balance is split
// into a free part and a reserved part; escrow lives in the reserved part.
package credit

import (
	"fmt"
	"math"
	"sync"

	"github.com/clawchain/clawmarket/internal/domain"
)

// GenesisAccount is the source of every endowment.
const GenesisAccount domain.AccountID = "genesis_pool"

// TxType is the kind of movement a journal entry belongs to.
type TxType string

const (
	TxDeposit  TxType = "DEPOSIT"
	TxReserve  TxType = "RESERVE"
	TxRelease  TxType = "UNRESERVE"
	TxTransfer TxType = "TRANSFER"
)

// EntryType is the side of a double-entry pair.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Bucket selects the free or reserved part of a balance.
type Bucket string

const (
	BucketFree     Bucket = "free"
	BucketReserved Bucket = "reserved"
)

// Entry is one side of a journaled movement.
type Entry struct {
	Seq       uint64           `json:"seq"`
	Type      TxType           `json:"type"`
	EntryType EntryType        `json:"entry_type"`
	Account   domain.AccountID `json:"account"`
	Bucket    Bucket           `json:"bucket"`
	Amount    domain.Balance   `json:"amount"`
	Balance   domain.Balance   `json:"balance"` // bucket balance after the entry
}

// AccountBalance is a snapshot of one account.
type AccountBalance struct {
	Account  domain.AccountID `json:"account"`
	Free     domain.Balance   `json:"free"`
	Reserved domain.Balance   `json:"reserved"`
}

type account struct {
	free     domain.Balance
	reserved domain.Balance
}

// Ledger manages balances. It implements domain.Currency.
type Ledger struct {
	mu         sync.RWMutex
	accounts   map[domain.AccountID]*account
	journal    []Entry
	maxJournal int
	seq        uint64
	debits     uint64
	credits    uint64
}

var _ domain.Currency = (*Ledger)(nil)

// NewLedger creates an empty ledger. maxJournal bounds the in-memory journal
// (0 keeps everything).
func NewLedger(maxJournal int) *Ledger {
	return &Ledger{
		accounts:   make(map[domain.AccountID]*account),
		maxJournal: maxJournal,
	}
}

// Deposit endows an account from the genesis pool.
func (l *Ledger) Deposit(to domain.AccountID, amount domain.Balance) error {
	if amount == 0 {
		return domain.ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.get(to)
	if acc.free > math.MaxUint64-amount {
		return fmt.Errorf("deposit %d to %s: balance overflow", amount, to)
	}
	acc.free += amount

	l.record(TxDeposit, EntryDebit, GenesisAccount, BucketFree, amount, 0)
	l.record(TxDeposit, EntryCredit, to, BucketFree, amount, acc.free)
	return nil
}

// Reserve moves amount from the free to the reserved balance.
func (l *Ledger) Reserve(who domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.get(who)
	if acc.free < amount {
		return fmt.Errorf("reserve %d from %s (free %d): %w", amount, who, acc.free, domain.ErrInsufficientBalance)
	}
	acc.free -= amount
	acc.reserved += amount

	l.record(TxReserve, EntryDebit, who, BucketFree, amount, acc.free)
	l.record(TxReserve, EntryCredit, who, BucketReserved, amount, acc.reserved)
	return nil
}

// Unreserve moves amount from the reserved back to the free balance.
func (l *Ledger) Unreserve(who domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.get(who)
	if acc.reserved < amount {
		return fmt.Errorf("unreserve %d from %s (reserved %d): %w", amount, who, acc.reserved, domain.ErrInsufficientBalance)
	}
	acc.reserved -= amount
	acc.free += amount

	l.record(TxRelease, EntryDebit, who, BucketReserved, amount, acc.reserved)
	l.record(TxRelease, EntryCredit, who, BucketFree, amount, acc.free)
	return nil
}

// TransferFromReserved moves amount from one account's reserved balance to
// another account's free balance.
func (l *Ledger) TransferFromReserved(from, to domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.get(from)
	if src.reserved < amount {
		return fmt.Errorf("transfer %d reserved from %s (reserved %d): %w", amount, from, src.reserved, domain.ErrInsufficientBalance)
	}
	dst := l.get(to)
	src.reserved -= amount
	dst.free += amount

	l.record(TxTransfer, EntryDebit, from, BucketReserved, amount, src.reserved)
	l.record(TxTransfer, EntryCredit, to, BucketFree, amount, dst.free)
	return nil
}

// Free returns the spendable balance.
func (l *Ledger) Free(who domain.AccountID) domain.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[who]; ok {
		return acc.free
	}
	return 0
}

// ReservedBalance returns the balance held in escrow.
func (l *Ledger) ReservedBalance(who domain.AccountID) domain.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[who]; ok {
		return acc.reserved
	}
	return 0
}

// Balance returns a snapshot of both parts of an account's balance.
func (l *Ledger) Balance(who domain.AccountID) AccountBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := AccountBalance{Account: who}
	if acc, ok := l.accounts[who]; ok {
		out.Free = acc.free
		out.Reserved = acc.reserved
	}
	return out
}

// TotalReserved sums reserved balances across all accounts.
func (l *Ledger) TotalReserved() domain.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total domain.Balance
	for _, acc := range l.accounts {
		total += acc.reserved
	}
	return total
}

// History returns the most recent journal entries touching an account,
// newest first.
func (l *Ledger) History(who domain.AccountID, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for i := len(l.journal) - 1; i >= 0; i-- {
		if l.journal[i].Account != who {
			continue
		}
		out = append(out, l.journal[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Totals returns the sum of all debits and credits ever journaled.
func (l *Ledger) Totals() (debits, credits uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.debits, l.credits
}

func (l *Ledger) get(who domain.AccountID) *account {
	acc, ok := l.accounts[who]
	if !ok {
		acc = &account{}
		l.accounts[who] = acc
	}
	return acc
}

// record appends a journal entry. Caller must hold l.mu.
func (l *Ledger) record(tx TxType, et EntryType, who domain.AccountID, b Bucket, amount, balance domain.Balance) {
	l.seq++
	if et == EntryDebit {
		l.debits += amount
	} else {
		l.credits += amount
	}
	l.journal = append(l.journal, Entry{
		Seq:       l.seq,
		Type:      tx,
		EntryType: et,
		Account:   who,
		Bucket:    b,
		Amount:    amount,
		Balance:   balance,
	})
	if l.maxJournal > 0 && len(l.journal) > l.maxJournal {
		l.journal = l.journal[len(l.journal)-l.maxJournal:]
	}
}
