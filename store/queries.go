package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/engine"
	"github.com/sievemod/sieve/override"
)

type cachedRuleSet struct {
	set    *engine.RuleSet
	loaded time.Time
}

// ActiveRuleSet implements engine.RuleSource. Rule rows are parsed and
// validated on load; malformed definitions are deactivated with a warning
// rather than failing evaluation. Concurrent cache misses collapse into one
// database read.
func (s *Store) ActiveRuleSet(ctx context.Context) (*engine.RuleSet, error) {
	s.ruleCacheL.Lock()
	cached := s.ruleCache
	s.ruleCacheL.Unlock()
	if cached != nil && time.Since(cached.loaded) < ruleSetTTL {
		return cached.set, nil
	}

	v, err, _ := s.ruleGroup.Do("rules", func() (any, error) {
		var rows []Rule
		if err := s.DB.WithContext(ctx).Find(&rows).Error; err != nil {
			return nil, err
		}
		defs := make([]engine.Rule, 0, len(rows))
		for _, row := range rows {
			def, err := row.ToEngine()
			if err != nil {
				s.Logger.Warn("unparseable rule definition deactivated", "err", err, "rule", row.ID)
				def.IsActive = false
			}
			defs = append(defs, def)
		}
		set, malformed := engine.NewRuleSet(defs)
		for _, err := range malformed {
			s.Logger.Warn("malformed rule deactivated", "err", err)
		}
		s.ruleCacheL.Lock()
		s.ruleCache = &cachedRuleSet{set: set, loaded: time.Now()}
		s.ruleCacheL.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.RuleSet), nil
}

// Drops the cached rule set, eg after an admin edit.
func (s *Store) InvalidateRuleCache() {
	s.ruleCacheL.Lock()
	s.ruleCache = nil
	s.ruleCacheL.Unlock()
}

func (s *Store) PutRule(ctx context.Context, def engine.Rule) error {
	row, err := RuleFromEngine(def)
	if err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return err
	}
	s.InvalidateRuleCache()
	return nil
}

// PutDecision records (or re-records, on content_edited) the decision for a
// content item.
func (s *Store) PutDecision(ctx context.Context, d engine.ModerationDecision) error {
	row, err := DecisionFromEngine(d)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content_type", "author_id", "winning_rule_id", "action",
			"confidence", "status", "reasons_json", "decided_at",
		}),
	}).Create(&row).Error
}

// GetDecision implements engine.DecisionSource and half of
// override.DecisionStore. Returns (nil, nil) when no decision exists.
func (s *Store) GetDecision(ctx context.Context, contentID string) (*engine.ModerationDecision, error) {
	var row Decision
	err := s.DB.WithContext(ctx).Where("content_id = ?", contentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	d, err := row.ToEngine()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) SetDecisionStatus(ctx context.Context, contentID string, status engine.DecisionStatus) error {
	return s.DB.WithContext(ctx).Model(&Decision{}).
		Where("content_id = ?", contentID).
		Update("status", string(status)).Error
}

// ListAmbiguous implements feedback.DecisionSource: auto-applied decisions
// inside the (exclusive) confidence band, newest first.
func (s *Store) ListAmbiguous(ctx context.Context, minConfidence, maxConfidence float64) ([]engine.ModerationDecision, error) {
	var rows []Decision
	err := s.DB.WithContext(ctx).
		Where("status = ? AND confidence > ? AND confidence < ?", string(engine.StatusAutoApplied), minConfidence, maxConfidence).
		Order("decided_at desc").
		Limit(500).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]engine.ModerationDecision, 0, len(rows))
	for _, row := range rows {
		d, err := row.ToEngine()
		if err != nil {
			s.Logger.Warn("skipping unparseable decision", "err", err, "contentID", row.ContentID)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Add implements consensus.VoteStore. The composite unique index on
// (content_id, voter_id) resolves submission races as conflicts.
func (s *Store) Add(ctx context.Context, vote consensus.Vote) error {
	row, err := VoteFromConsensus(vote)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return consensus.ErrDuplicateVote
	}
	return err
}

func (s *Store) ListByContent(ctx context.Context, contentID string) ([]consensus.Vote, error) {
	var rows []Vote
	if err := s.DB.WithContext(ctx).Where("content_id = ?", contentID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]consensus.Vote, 0, len(rows))
	for _, row := range rows {
		v, err := row.ToConsensus()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) HasVoted(ctx context.Context, contentID, voterID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&Vote{}).
		Where("content_id = ? AND voter_id = ?", contentID, voterID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) CountByContent(ctx context.Context, contentID string) (int, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&Vote{}).
		Where("content_id = ?", contentID).
		Count(&count).Error
	return int(count), err
}

// View of the store satisfying consensus.RecordStore.
type ConsensusRecords struct {
	s *Store
}

func (s *Store) ConsensusRecords() ConsensusRecords {
	return ConsensusRecords{s: s}
}

func (v ConsensusRecords) Upsert(ctx context.Context, rec consensus.Record) error {
	s := v.s
	row := Consensus{
		ContentID:      rec.ContentID,
		TotalWeight:    rec.TotalWeight,
		AgreeWeight:    rec.AgreeWeight,
		DisagreeWeight: rec.DisagreeWeight,
		VoterCount:     rec.VoterCount,
		Score:          rec.Score,
		ComputedAt:     rec.ComputedAt,
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_weight", "agree_weight", "disagree_weight",
			"voter_count", "score", "computed_at",
		}),
	}).Create(&row).Error
}

func (v ConsensusRecords) Get(ctx context.Context, contentID string) (*consensus.Record, error) {
	s := v.s
	var row Consensus
	err := s.DB.WithContext(ctx).Where("content_id = ?", contentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	rec := row.ToConsensus()
	return &rec, nil
}

// View of the store satisfying override.RecommendationStore.
type Recommendations struct {
	s *Store
}

func (s *Store) Recommendations() Recommendations {
	return Recommendations{s: s}
}

func (v Recommendations) Create(ctx context.Context, rec override.Recommendation) error {
	s := v.s
	row := OverrideRecommendation{
		RecID:             rec.ID,
		ContentID:         rec.ContentID,
		OriginalAction:    string(rec.OriginalAction),
		RecommendedAction: string(rec.RecommendedAction),
		Confidence:        rec.Confidence,
		Status:            string(rec.Status),
		ReviewedBy:        rec.ReviewedBy,
		ReviewedAt:        rec.ReviewedAt,
		Notes:             rec.Notes,
	}
	return s.DB.WithContext(ctx).Create(&row).Error
}

func (v Recommendations) Update(ctx context.Context, rec override.Recommendation) error {
	return v.s.DB.WithContext(ctx).Model(&OverrideRecommendation{}).
		Where("rec_id = ?", rec.ID).
		Updates(map[string]any{
			"recommended_action": string(rec.RecommendedAction),
			"confidence":         rec.Confidence,
			"status":             string(rec.Status),
			"reviewed_by":        rec.ReviewedBy,
			"reviewed_at":        rec.ReviewedAt,
			"notes":              rec.Notes,
		}).Error
}

// The status guard rides on the UPDATE itself, so two racing reviews resolve
// in the database: zero rows affected means somebody else closed it first.
func (v Recommendations) Close(ctx context.Context, rec override.Recommendation) error {
	res := v.s.DB.WithContext(ctx).Model(&OverrideRecommendation{}).
		Where("rec_id = ? AND status = ?", rec.ID, string(override.StatusPending)).
		Updates(map[string]any{
			"status":      string(rec.Status),
			"reviewed_by": rec.ReviewedBy,
			"reviewed_at": rec.ReviewedAt,
			"notes":       rec.Notes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return override.ErrInvalidTransition
	}
	return nil
}

func (v Recommendations) Get(ctx context.Context, id string) (*override.Recommendation, error) {
	var row OverrideRecommendation
	err := v.s.DB.WithContext(ctx).Where("rec_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	rec := row.ToOverride()
	return &rec, nil
}

func (v Recommendations) GetPending(ctx context.Context, contentID string) (*override.Recommendation, error) {
	var row OverrideRecommendation
	err := v.s.DB.WithContext(ctx).
		Where("content_id = ? AND status = ?", contentID, string(override.StatusPending)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	rec := row.ToOverride()
	return &rec, nil
}
