package market

import (
	"fmt"

	"github.com/clawchain/clawmarket/internal/domain"
)

// ResolveDispute settles a Disputed task. Only root may call it.
//
// If the worker wins, the reward goes to the worker; if the poster wins, the
// escrow is refunded. Either way the winner gets the dispute-win bonus and the
// loser the dispute-loss penalty.
func (m *Market) ResolveDispute(origin domain.Origin, id domain.TaskID, winner domain.AccountID) error {
	if err := origin.EnsureRoot(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskDisputed {
		return statusErr(task, domain.TaskDisputed)
	}
	worker := *task.AssignedTo

	var loser domain.AccountID
	switch winner {
	case worker:
		loser = task.Poster
	case task.Poster:
		loser = worker
	default:
		return fmt.Errorf("winner %s: %w", winner, domain.ErrInvalidWinner)
	}

	path := "refunded"
	if winner == worker {
		err = m.currency.TransferFromReserved(task.Poster, worker, task.Reward)
		path = "paid"
	} else {
		err = m.currency.Unreserve(task.Poster, task.Reward)
	}
	if err != nil {
		return fmt.Errorf("settle escrow: %w", err)
	}

	m.transition(task, domain.TaskResolved)
	m.release(task, path)
	m.rep.OnDisputeResolved(winner, loser)

	m.events.Emit(domain.EvtDisputeResolved, map[string]any{
		"task_id": id,
		"winner":  winner,
		"loser":   loser,
		"payout":  path,
	})
	return nil
}
