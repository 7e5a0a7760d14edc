package annotation

// Budget bounds consecutive content-failure attempts per document. Claim
// conflicts, store timeouts and successful (full or partial) window progress
// never consume budget; only content evaluation failures do.
type Budget struct {
	MaxAttempts int
}

// Charge records one content failure against the state and derives the next
// status: retry while budget remains, failed once it is exhausted. Failed is
// terminal and never auto-recovers.
func (b Budget) Charge(s *State, message string) Status {
	s.Attempts++
	s.Message = message
	if s.Attempts >= b.MaxAttempts {
		s.Status = StatusFailed
		return StatusFailed
	}
	s.Status = StatusRetry
	return StatusRetry
}

// Exhausted reports whether one more failure would make the document terminal.
func (b Budget) Exhausted(attempts int) bool {
	return attempts+1 >= b.MaxAttempts
}
