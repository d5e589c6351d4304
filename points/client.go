// Package points is the client for the external points/reputation service.
// The engine only computes amounts and reasons; the service owns the ledger.
package points

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Reasons the engine awards points for.
const (
	ReasonFeedbackVote       = "feedback_vote"
	ReasonOverrideVindicated = "override_vindicated"
)

// Points awarded for submitting a feedback vote.
const VoteReward = 1

type Client struct {
	Host    string
	Limiter *rate.Limiter

	httpClient *retryablehttp.Client
	logger     *slog.Logger
}

func NewClient(host string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	return &Client{
		Host:       host,
		Limiter:    rate.NewLimiter(rate.Limit(20), 40),
		httpClient: rc,
		logger:     logger,
	}
}

type awardBody struct {
	UserID string `json:"userId"`
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// Awards points to a user. Retries are safe: the idempotency key makes the
// service deduplicate repeated deliveries of the same award.
func (c *Client) Award(ctx context.Context, userID string, amount int, reason, idempotencyKey string) error {
	if c.Host == "" {
		// points service not configured; awards are a no-op
		return nil
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(awardBody{UserID: userID, Amount: amount, Reason: reason})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/points/award", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("points service request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		// conflict means the award already landed under this key
		return fmt.Errorf("points service status %d", resp.StatusCode)
	}
	c.logger.Debug("points awarded", "user", userID, "amount", amount, "reason", reason)
	return nil
}
