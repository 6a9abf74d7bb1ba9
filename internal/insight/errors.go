package insight

import (
	"errors"
	"fmt"
)

var (
	ErrNoRespondents = errors.New("no respondents match the request")
	ErrNoResponses   = errors.New("no responses match the request")
	// ErrNoQuestions marks a survey type without questions; AnalyzeAll skips it.
	ErrNoQuestions = errors.New("survey type has no questions")
)

// ValidationError reports a request that cannot be analyzed. It wraps one of
// the sentinels above when the cause is missing data.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
