package engine

import (
	"strconv"
	"strings"
	"time"
)

// Author-side context supplied by the content source alongside each event.
type AuthorContext struct {
	UserID         string  `json:"userId"`
	AccountAgeDays float64 `json:"accountAgeDays"`
	Reputation     float64 `json:"reputation"`
	PriorFlags     int     `json:"priorFlags"`
}

// Immutable view of one content item at evaluation time. Rule evaluation
// never mutates the snapshot, so many items can be evaluated concurrently.
type ContentSnapshot struct {
	ContentID   string         `json:"contentId"`
	ContentType string         `json:"contentType"`
	Text        string         `json:"text"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Author      AuthorContext  `json:"author"`
	ReceivedAt  time.Time      `json:"receivedAt"`
}

// Resolves a condition field path against the snapshot. Supported roots are
// "content.", "metadata." and "author.". A missing field returns ok=false,
// which evaluates as "not satisfied", never an error.
func (s *ContentSnapshot) Field(path string) (any, bool) {
	root, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	switch root {
	case "content":
		switch rest {
		case "id":
			return s.ContentID, true
		case "type":
			return s.ContentType, true
		case "text":
			return s.Text, true
		}
	case "metadata":
		if s.Metadata == nil {
			return nil, false
		}
		v, ok := s.Metadata[rest]
		return v, ok
	case "author":
		switch rest {
		case "id":
			return s.Author.UserID, true
		case "account_age_days":
			return s.Author.AccountAgeDays, true
		case "reputation":
			return s.Author.Reputation, true
		case "prior_flags":
			return s.Author.PriorFlags, true
		}
	}
	return nil, false
}

// Coerces a field value to a float for gt/lt comparisons. Returns ok=false
// when the value has no sensible numeric form.
func coerceNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Coerces a field value to a string for equals/contains/matches comparisons.
func coerceString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}
