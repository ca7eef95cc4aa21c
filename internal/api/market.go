package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clawchain/clawmarket/internal/app/market"
	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/node"
)

const maxBody = 64 << 10

// ─── Calls ──────────────────────────────────────────────────────────────────

// dispatch runs call under the request's principal and writes the receipt.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, call node.Call) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	rcpt, err := s.node.Dispatch(r.Context(), p.Origin(), call)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	status := http.StatusOK
	if rcpt.TaskID != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, rcpt)
}

// decode reads the request body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func taskIDParam(r *http.Request) (domain.TaskID, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// taskCall decodes the body into call, then wraps the task handler.
func (s *Server) taskCall(w http.ResponseWriter, r *http.Request, body any, build func(domain.TaskID) node.Call) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if body != nil {
		if err := decode(r, body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	s.dispatch(w, r, build(id))
}

func (s *Server) handlePostTask(w http.ResponseWriter, r *http.Request) {
	var c node.PostTask
	if err := decode(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.dispatch(w, r, c)
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var c node.BidOnTask
	s.taskCall(w, r, &c, func(id domain.TaskID) node.Call { c.TaskID = id; return c })
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var c node.AssignTask
	s.taskCall(w, r, &c, func(id domain.TaskID) node.Call { c.TaskID = id; return c })
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var c node.SubmitWork
	s.taskCall(w, r, &c, func(id domain.TaskID) node.Call { c.TaskID = id; return c })
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.taskCall(w, r, nil, func(id domain.TaskID) node.Call { return node.ApproveWork{TaskID: id} })
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	var c node.DisputeTask
	s.taskCall(w, r, &c, func(id domain.TaskID) node.Call { c.TaskID = id; return c })
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var c node.ResolveDispute
	s.taskCall(w, r, &c, func(id domain.TaskID) node.Call { c.TaskID = id; return c })
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.taskCall(w, r, nil, func(id domain.TaskID) node.Call { return node.CancelTask{TaskID: id} })
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var c node.SubmitReview
	if err := decode(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.dispatch(w, r, c)
}

func (s *Server) handleSlash(w http.ResponseWriter, r *http.Request) {
	var c node.SlashReputation
	if err := decode(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.dispatch(w, r, c)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	call, err := node.DecodeCall(chi.URLParam(r, "method"), body)
	if err != nil {
		if domain.ErrorCode(err) != "" {
			writeDispatchError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.dispatch(w, r, call)
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"account": p.Account,
		"root":    p.Root,
		"source":  p.Source,
	})
}

// ─── Queries ────────────────────────────────────────────────────────────────

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := market.Filter{
		Status:     domain.TaskStatus(q.Get("status")),
		Poster:     domain.AccountID(q.Get("poster")),
		AssignedTo: domain.AccountID(q.Get("assigned_to")),
		Limit:      queryInt(r, "limit", 0),
	}
	tasks := s.node.Tasks(f)
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleTaskCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"task_count": s.node.TaskCount()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	t, err := s.node.Task(id)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	bids, err := s.node.Bids(id)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

func (s *Server) handleGetBid(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	b, err := s.node.Bid(id, domain.AccountID(chi.URLParam(r, "bidder")))
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	acc := domain.AccountID(chi.URLParam(r, "account"))
	writeJSON(w, http.StatusOK, s.node.Reputation(acc))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	acc := domain.AccountID(chi.URLParam(r, "account"))
	h := s.node.History(acc)
	if h == nil {
		h = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acc, "history": h})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acc := domain.AccountID(chi.URLParam(r, "account"))
	writeJSON(w, http.StatusOK, s.node.Balance(acc))
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	acc := domain.AccountID(chi.URLParam(r, "account"))
	entries := s.node.LedgerHistory(acc, queryInt(r, "limit", 50))
	writeJSON(w, http.StatusOK, map[string]any{"account": acc, "entries": entries})
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	rev, ok := s.node.Review(
		domain.AccountID(chi.URLParam(r, "reviewer")),
		domain.AccountID(chi.URLParam(r, "reviewee")),
	)
	if !ok {
		writeError(w, http.StatusNotFound, "review_not_found", "review not found")
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	evts, err := s.node.Events(uint64(queryInt(r, "after", 0)), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no_journal", err.Error())
		return
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

func (s *Server) handleExtrinsics(w http.ResponseWriter, r *http.Request) {
	xs, err := s.node.Extrinsics(uint64(queryInt(r, "after", 0)))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no_journal", err.Error())
		return
	}
	if xs == nil {
		xs = []domain.Extrinsic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"extrinsics": xs})
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
