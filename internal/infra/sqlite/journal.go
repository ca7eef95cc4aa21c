package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clawchain/clawmarket/internal/domain"
)

// ─── Extrinsic Journal ──────────────────────────────────────────────────────

// InsertExtrinsic appends a dispatched call to the journal.
func (d *DB) InsertExtrinsic(x domain.Extrinsic) error {
	args := string(x.Args)
	if args == "" {
		args = "{}"
	}
	_, err := d.db.Exec(
		`INSERT INTO extrinsics (seq, origin, method, args, ok, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		x.Seq, x.Origin, x.Method, args, x.OK, x.Error, x.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert extrinsic %d: %w", x.Seq, err)
	}
	return nil
}

// ListExtrinsics returns journaled calls with seq > afterSeq in sequence
// order. When okOnly is set, failed calls are skipped.
func (d *DB) ListExtrinsics(afterSeq uint64, okOnly bool) ([]domain.Extrinsic, error) {
	query := `SELECT seq, origin, method, args, ok, error, at FROM extrinsics WHERE seq > ?`
	if okOnly {
		query += ` AND ok = 1`
	}
	query += ` ORDER BY seq ASC`

	rows, err := d.db.Query(query, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Extrinsic
	for rows.Next() {
		x, err := scanExtrinsic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// LastSeq returns the highest journaled sequence number, or 0 when empty.
func (d *DB) LastSeq() (uint64, error) {
	var seq uint64
	err := d.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM extrinsics`).Scan(&seq)
	return seq, err
}

func scanExtrinsic(s scanner) (domain.Extrinsic, error) {
	var x domain.Extrinsic
	var args string
	var at int64
	if err := s.Scan(&x.Seq, &x.Origin, &x.Method, &args, &x.OK, &x.Error, &at); err != nil {
		return x, err
	}
	x.Args = json.RawMessage(args)
	x.At = time.UnixMilli(at)
	return x, nil
}

// ─── Events ─────────────────────────────────────────────────────────────────

// InsertEvents stores the events committed by one call in a single
// transaction.
func (d *DB) InsertEvents(events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO events (id, seq, idx, kind, payload, at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Kind, err)
		}
		if _, err := stmt.Exec(e.ID, e.Seq, e.Index, string(e.Kind), string(payload), e.At.UnixMilli()); err != nil {
			return fmt.Errorf("insert event %s: %w", e.Kind, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns up to limit events raised after afterSeq, oldest first.
// A limit <= 0 returns everything.
func (d *DB) ListEvents(afterSeq uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(
		`SELECT id, seq, idx, kind, payload, at FROM events
		 WHERE seq > ? ORDER BY seq ASC, idx ASC LIMIT ?`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind, payload string
		var at int64
		if err := rows.Scan(&e.ID, &e.Seq, &e.Index, &kind, &payload, &at); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		e.At = time.UnixMilli(at)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Genesis ────────────────────────────────────────────────────────────────

// SetGenesis records the initial endowments. It replaces any existing set.
func (d *DB) SetGenesis(balances map[domain.AccountID]domain.Balance) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM genesis`); err != nil {
		return err
	}
	for acc, bal := range balances {
		if _, err := tx.Exec(`INSERT INTO genesis (account, balance) VALUES (?, ?)`, string(acc), bal); err != nil {
			return fmt.Errorf("insert genesis %s: %w", acc, err)
		}
	}
	return tx.Commit()
}

// Genesis returns the persisted endowments. An empty map means the node has
// never booted against this database.
func (d *DB) Genesis() (map[domain.AccountID]domain.Balance, error) {
	rows, err := d.db.Query(`SELECT account, balance FROM genesis`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.AccountID]domain.Balance)
	for rows.Next() {
		var acc string
		var bal domain.Balance
		if err := rows.Scan(&acc, &bal); err != nil {
			return nil, err
		}
		out[domain.AccountID(acc)] = bal
	}
	return out, rows.Err()
}
