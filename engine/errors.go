package engine

import (
	"errors"
)

// Returned when the active rule set can not be loaded. Fatal for the
// evaluation cycle: callers must fall back to a pending_review decision,
// never a silent approval.
var ErrRuleSetUnavailable = errors.New("active rule set unavailable")
