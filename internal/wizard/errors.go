package wizard

import "errors"

var (
	// ErrDraftNotFound means the draft expired or never existed.
	ErrDraftNotFound = errors.New("wizard: draft not found")
	// ErrNoApplicant means a later step ran before the applicant step.
	ErrNoApplicant = errors.New("wizard: draft has no applicant")
	// ErrNoOffice means a later step ran before the office step.
	ErrNoOffice = errors.New("wizard: draft has no office")
	// ErrNoDateTime means confirmation ran before a slot was chosen.
	ErrNoDateTime = errors.New("wizard: draft has no date and time")
)
