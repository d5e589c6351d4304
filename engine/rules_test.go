package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRule(id int64, priority int) Rule {
	return Rule{
		ID:           id,
		Name:         "test-rule",
		Priority:     priority,
		IsActive:     true,
		TriggerEvent: "content_posted",
		Severity:     SeverityMedium,
		Conditions: []Condition{
			{Type: "text", Operator: OpContains, Field: "content.text", Value: "spam", Weight: 1.0},
		},
		Actions: []Action{
			{Type: ActionFlag},
		},
	}
}

func TestRuleValidate(t *testing.T) {
	assert := assert.New(t)

	r := validRule(1, 5)
	assert.NoError(r.Validate())

	bad := validRule(2, 0)
	assert.Error(bad.Validate())

	bad = validRule(3, 5)
	bad.Conditions[0].Operator = "regexp"
	assert.Error(bad.Validate())

	bad = validRule(4, 5)
	bad.Conditions[0].Weight = 0
	assert.Error(bad.Validate())

	bad = validRule(5, 5)
	bad.Conditions[0].Operator = OpMatches
	bad.Conditions[0].Value = "(unclosed"
	assert.Error(bad.Validate())

	bad = validRule(6, 5)
	bad.Actions[0].Type = "obliterate"
	assert.Error(bad.Validate())

	bad = validRule(7, 5)
	bad.Conditions = nil
	assert.Error(bad.Validate())
}

func TestNewRuleSetDeactivatesMalformed(t *testing.T) {
	assert := assert.New(t)

	ok := validRule(1, 5)
	zeroWeight := validRule(2, 5)
	zeroWeight.Conditions[0].Weight = 0

	rs, malformed := NewRuleSet([]Rule{ok, zeroWeight})
	assert.Len(malformed, 1)
	assert.Equal(2, rs.Len())

	active := rs.ForEvent("content_posted")
	assert.Len(active, 1)
	assert.Equal(int64(1), active[0].ID)
}

func TestRuleSetOrdering(t *testing.T) {
	assert := assert.New(t)

	// priority descending, then rule id ascending
	rs, malformed := NewRuleSet([]Rule{
		validRule(9, 3),
		validRule(4, 8),
		validRule(2, 8),
		validRule(7, 5),
	})
	assert.Empty(malformed)

	active := rs.ForEvent("content_posted")
	ids := make([]int64, len(active))
	for i, r := range active {
		ids[i] = r.ID
	}
	assert.Equal([]int64{2, 4, 7, 9}, ids)
}

func TestRuleSetForEventFiltering(t *testing.T) {
	assert := assert.New(t)

	posted := validRule(1, 5)
	edited := validRule(2, 5)
	edited.TriggerEvent = "content_edited"
	inactive := validRule(3, 5)
	inactive.IsActive = false

	rs, _ := NewRuleSet([]Rule{posted, edited, inactive})
	assert.Len(rs.ForEvent("content_posted"), 1)
	assert.Len(rs.ForEvent("content_edited"), 1)
	assert.Empty(rs.ForEvent("account_created"))
}

func TestEffectiveMinScore(t *testing.T) {
	assert := assert.New(t)

	r := validRule(1, 5)
	assert.Equal(DefaultMinScore, r.EffectiveMinScore())
	r.MinScore = 0.8
	assert.Equal(0.8, r.EffectiveMinScore())
}
