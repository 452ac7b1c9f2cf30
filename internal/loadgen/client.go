package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
)

// Submission results.
const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
)

const maxErrorBody = 4 << 10

// Client talks to the scoreboard HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Health checks that the service answers /healthz with 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// CreateLeaderboard creates a leaderboard of the given size and makes it current.
func (c *Client) CreateLeaderboard(ctx context.Context, size int) (types.LeaderboardInfo, error) {
	var info types.LeaderboardInfo
	resp, err := c.do(ctx, http.MethodPost, "/leaderboards?size="+strconv.Itoa(size), nil)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusCreated); err != nil {
		return info, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decode leaderboard: %w", err)
	}
	return info, nil
}

// Submit posts one score, to the queued endpoint when async is set. It
// returns ResultRejected when the service pushes back and ResultFailed for
// any other non-success answer.
func (c *Client) Submit(ctx context.Context, rec model.ScoreRecord, async bool) string {
	path, want := "/scores", http.StatusOK
	if async {
		path, want = "/scores/async", http.StatusAccepted
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return ResultFailed
	}
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return ResultFailed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case want:
		return ResultOK
	case http.StatusTooManyRequests:
		return ResultRejected
	default:
		return ResultFailed
	}
}

// Leaderboard fetches the ranked entries of leaderboard id.
func (c *Client) Leaderboard(ctx context.Context, id string) ([]types.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/leaderboards/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var entries []types.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func expect(resp *http.Response, status int) error {
	if resp.StatusCode == status {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
}
