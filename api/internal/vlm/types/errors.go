package types

import "fmt"

// AnalysisError is returned when the analysis call fails, returns no text or
// returns a payload that does not match the findings schema.
type AnalysisError struct {
	Engine string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s analyze: %v", e.Engine, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ChatError is returned when a conversation turn fails.
type ChatError struct {
	Engine string
	Err    error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("%s converse: %v", e.Engine, e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }
