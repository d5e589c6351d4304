package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/engine"
	"github.com/sievemod/sieve/override"
	"github.com/sievemod/sieve/points"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon string `json:"daemon"`
	Status string `json:"status"`
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Daemon: "sieved", Status: "ok"})
}

type EventRequest struct {
	Event   string                 `json:"event"`
	Content engine.ContentSnapshot `json:"content"`
}

func (srv *Server) HandleEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	if req.Event == "" || req.Content.ContentID == "" {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: "event and content.contentId are required",
		})
	}
	if req.Content.ReceivedAt.IsZero() {
		req.Content.ReceivedAt = time.Now()
	}

	out, err := srv.engine.ProcessContent(ctx, &req.Content, req.Event)
	if errors.Is(err, engine.ErrRuleSetUnavailable) {
		// rules can not be loaded; park the content for human review rather
		// than letting it through unevaluated
		decision := engine.ModerationDecision{
			ContentID:   req.Content.ContentID,
			ContentType: req.Content.ContentType,
			AuthorID:    req.Content.Author.UserID,
			Action:      engine.ActionQueueForReview,
			Confidence:  0,
			Status:      engine.StatusPendingReview,
			CreatedAt:   time.Now(),
		}
		if err := srv.store.PutDecision(ctx, decision); err != nil {
			return c.JSON(500, GenericError{
				Error:   "InternalError",
				Message: fmt.Sprintf("%s", err),
			})
		}
		return c.JSON(200, decision)
	} else if err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: fmt.Sprintf("%s", err),
		})
	}

	if err := srv.store.PutDecision(ctx, out.Decision); err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: fmt.Sprintf("%s", err),
		})
	}
	return c.JSON(200, out.Decision)
}

func (srv *Server) GetDecision(c echo.Context) error {
	ctx := c.Request().Context()

	decision, err := srv.store.GetDecision(ctx, c.Param("contentID"))
	if err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: fmt.Sprintf("%s", err),
		})
	}
	if decision == nil {
		return c.JSON(404, GenericError{
			Error:   "DecisionNotFound",
			Message: "no decision recorded for this content",
		})
	}
	return c.JSON(200, decision)
}

type VoteRequest struct {
	ContentID  string                 `json:"contentId"`
	VoterID    string                 `json:"voterId"`
	TrustLevel consensus.TrustLevel   `json:"voterTrustLevel"`
	Feedback   consensus.VoteFeedback `json:"feedback"`
}

func (srv *Server) SubmitVote(c echo.Context) error {
	ctx := c.Request().Context()

	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	if req.ContentID == "" || req.VoterID == "" {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: "contentId and voterId are required",
		})
	}

	rec, err := srv.calc.SubmitVote(ctx, consensus.Vote{
		ContentID:   req.ContentID,
		VoterID:     req.VoterID,
		TrustLevel:  req.TrustLevel,
		Feedback:    req.Feedback,
		SubmittedAt: time.Now(),
	})
	if errors.Is(err, consensus.ErrDuplicateVote) {
		return c.JSON(409, GenericError{
			Error:   "DuplicateVote",
			Message: "this voter already voted on this content",
		})
	} else if err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: fmt.Sprintf("%s", err),
		})
	}

	// participation reward; the vote itself is already durable
	key := fmt.Sprintf("vote/%s/%s", req.ContentID, req.VoterID)
	if err := srv.points.Award(ctx, req.VoterID, points.VoteReward, points.ReasonFeedbackVote, key); err != nil {
		srv.logger.Warn("failed to award vote points", "err", err, "voterID", req.VoterID)
	}

	return c.JSON(200, rec)
}

func (srv *Server) GetFeedbackOpportunities(c echo.Context) error {
	ctx := c.Request().Context()

	userID := c.QueryParam("user")
	if userID == "" {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: "user query parameter is required",
		})
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return c.JSON(400, GenericError{
				Error:   "InvalidRequest",
				Message: "limit must be an integer between 1 and 100",
			})
		}
		limit = n
	}

	opps, err := srv.selector.Select(ctx, userID, limit)
	if err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: fmt.Sprintf("%s", err),
		})
	}
	return c.JSON(200, opps)
}

type ReviewRequest struct {
	Reviewer string `json:"reviewer"`
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

func (srv *Server) ReviewOverride(c echo.Context) error {
	ctx := c.Request().Context()

	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	if req.Reviewer == "" {
		return c.JSON(400, GenericError{
			Error:   "InvalidRequest",
			Message: "reviewer is required",
		})
	}

	rec, err := srv.gate.Review(ctx, c.Param("overrideID"), req.Reviewer, req.Approved, req.Notes)
	if errors.Is(err, override.ErrNotFound) {
		return c.JSON(404, GenericError{
			Error:   "OverrideNotFound",
			Message: "no such override recommendation",
		})
	} else if errors.Is(err, override.ErrInvalidTransition) {
		return c.JSON(409, GenericError{
			Error:   "AlreadyReviewed",
			Message: "recommendation has already been reviewed",
		})
	} else if err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: fmt.Sprintf("%s", err),
		})
	}
	return c.JSON(200, rec)
}
