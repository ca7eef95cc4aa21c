// Package client is a small HTTP client for a clawmarket node's API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clawchain/clawmarket/internal/app/credit"
	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/node"
)

// Client talks to one node.
type Client struct {
	BaseURL     string
	BearerToken string
	// Account is sent as X-Account when no token is set (dev auth only).
	Account    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses. It unwraps to the domain sentinel named
// by the response code, so errors.Is works across the wire.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Message)
}

// Unwrap returns the matching domain sentinel, if any.
func (e *APIError) Unwrap() error {
	if err, ok := domain.ErrorForCode(e.Code); ok {
		return err
	}
	return nil
}

// Status is the node summary from /api/v1/status.
type Status struct {
	NodeID    string         `json:"node_id"`
	Version   string         `json:"version"`
	Seq       uint64         `json:"seq"`
	TaskCount uint64         `json:"task_count"`
	Escrow    domain.Balance `json:"escrow"`
}

// WhoAmI is the caller identity the node resolved.
type WhoAmI struct {
	Account domain.AccountID `json:"account"`
	Root    bool             `json:"root"`
	Source  string           `json:"source"`
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Status     domain.TaskStatus
	Poster     domain.AccountID
	AssignedTo domain.AccountID
	Limit      int
}

// ─── Calls ──────────────────────────────────────────────────────────────────

// PostTask posts a task and returns the receipt (with the new task id).
func (c *Client) PostTask(ctx context.Context, call node.PostTask) (node.Receipt, error) {
	return c.submit(ctx, "api/v1/tasks", call)
}

func (c *Client) Bid(ctx context.Context, call node.BidOnTask) (node.Receipt, error) {
	return c.submit(ctx, taskPath(call.TaskID, "bids"), call)
}

func (c *Client) Assign(ctx context.Context, call node.AssignTask) (node.Receipt, error) {
	return c.submit(ctx, taskPath(call.TaskID, "assign"), call)
}

func (c *Client) Submit(ctx context.Context, call node.SubmitWork) (node.Receipt, error) {
	return c.submit(ctx, taskPath(call.TaskID, "submit"), call)
}

func (c *Client) Approve(ctx context.Context, id domain.TaskID) (node.Receipt, error) {
	return c.submit(ctx, taskPath(id, "approve"), nil)
}

func (c *Client) Dispute(ctx context.Context, call node.DisputeTask) (node.Receipt, error) {
	return c.submit(ctx, taskPath(call.TaskID, "dispute"), call)
}

func (c *Client) Resolve(ctx context.Context, call node.ResolveDispute) (node.Receipt, error) {
	return c.submit(ctx, taskPath(call.TaskID, "resolve"), call)
}

func (c *Client) Cancel(ctx context.Context, id domain.TaskID) (node.Receipt, error) {
	return c.submit(ctx, taskPath(id, "cancel"), nil)
}

func (c *Client) Review(ctx context.Context, call node.SubmitReview) (node.Receipt, error) {
	return c.submit(ctx, "api/v1/reviews", call)
}

func (c *Client) Slash(ctx context.Context, call node.SlashReputation) (node.Receipt, error) {
	return c.submit(ctx, "api/v1/slashes", call)
}

// Call submits any call through the raw endpoint.
func (c *Client) Call(ctx context.Context, call node.Call) (node.Receipt, error) {
	return c.submit(ctx, "api/v1/calls/"+url.PathEscape(call.Method()), call)
}

func (c *Client) submit(ctx context.Context, endpoint string, body any) (node.Receipt, error) {
	var r node.Receipt
	err := c.do(ctx, http.MethodPost, endpoint, body, &r)
	return r, err
}

// ─── Queries ────────────────────────────────────────────────────────────────

func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, http.MethodGet, "api/v1/status", nil, &s)
	return s, err
}

func (c *Client) WhoAmI(ctx context.Context) (WhoAmI, error) {
	var w WhoAmI
	err := c.do(ctx, http.MethodGet, "api/v1/whoami", nil, &w)
	return w, err
}

func (c *Client) Task(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &t)
	return t, err
}

func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Poster != "" {
		q.Set("poster", string(f.Poster))
	}
	if f.AssignedTo != "" {
		q.Set("assigned_to", string(f.AssignedTo))
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	endpoint := "api/v1/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

func (c *Client) TaskCount(ctx context.Context) (uint64, error) {
	var resp struct {
		TaskCount uint64 `json:"task_count"`
	}
	err := c.do(ctx, http.MethodGet, "api/v1/tasks/count", nil, &resp)
	return resp.TaskCount, err
}

func (c *Client) Bids(ctx context.Context, id domain.TaskID) ([]domain.Bid, error) {
	var resp struct {
		Bids []domain.Bid `json:"bids"`
	}
	err := c.do(ctx, http.MethodGet, taskPath(id, "bids"), nil, &resp)
	return resp.Bids, err
}

func (c *Client) Reputation(ctx context.Context, acc domain.AccountID) (domain.ReputationRecord, error) {
	var r domain.ReputationRecord
	err := c.do(ctx, http.MethodGet, accountPath(acc, "reputation"), nil, &r)
	return r, err
}

func (c *Client) History(ctx context.Context, acc domain.AccountID) ([]domain.HistoryEntry, error) {
	var resp struct {
		History []domain.HistoryEntry `json:"history"`
	}
	err := c.do(ctx, http.MethodGet, accountPath(acc, "history"), nil, &resp)
	return resp.History, err
}

func (c *Client) Balance(ctx context.Context, acc domain.AccountID) (credit.AccountBalance, error) {
	var b credit.AccountBalance
	err := c.do(ctx, http.MethodGet, accountPath(acc, "balance"), nil, &b)
	return b, err
}

func (c *Client) Ledger(ctx context.Context, acc domain.AccountID, limit int) ([]credit.Entry, error) {
	var resp struct {
		Entries []credit.Entry `json:"entries"`
	}
	endpoint := accountPath(acc, "ledger")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Entries, err
}

func (c *Client) Events(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	var resp struct {
		Events []domain.Event `json:"events"`
	}
	endpoint := fmt.Sprintf("api/v1/events?after=%d&limit=%d", afterSeq, limit)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

// ─── Transport ──────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.Account != "":
		req.Header.Set("X-Account", c.Account)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil && env.Error.Code != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func taskPath(id domain.TaskID, suffix string) string {
	p := fmt.Sprintf("api/v1/tasks/%d", id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func accountPath(acc domain.AccountID, suffix string) string {
	return fmt.Sprintf("api/v1/accounts/%s/%s", url.PathEscape(string(acc)), suffix)
}
