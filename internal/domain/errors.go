package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBooking = errors.New("invalid booking")
	ErrRoomConflict   = errors.New("room conflict")
	ErrUnauthorized   = errors.New("not authorized")
	ErrNotFound       = errors.New("booking not found")

	// ErrRoomBusy means another write held the room lock for too long. It is not a time conflict.
	ErrRoomBusy = errors.New("room is busy, try again")

	ErrAccessCodeRequired  = fmt.Errorf("%w: access code required", ErrUnauthorized)
	ErrAccessCodeIncorrect = fmt.Errorf("%w: incorrect access code", ErrUnauthorized)
)

// Rule identifies the booking check that rejected a request.
type Rule string

const (
	RuleTimesRequired        Rule = "times_required"
	RuleEndAfterStart        Rule = "end_after_start"
	RuleStartInFuture        Rule = "start_in_future"
	RuleEndInFuture          Rule = "end_in_future"
	RuleRoomAvailable        Rule = "room_available"
	RuleAccessCodeRequired   Rule = "access_code_required"
	RuleParticipantsRequired Rule = "participants_required"
	RuleParticipantName      Rule = "participant_name"
	RuleTitleRequired        Rule = "title_required"
	RuleLocationRequired     Rule = "location_required"
	RuleDescriptionRequired  Rule = "description_required"
	RuleAccessType           Rule = "access_type"
)

type Violation struct {
	Rule    Rule   `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v *Violation) Error() string {
	return v.Message
}

// Unwrap lets callers tell a room conflict apart from malformed input with errors.Is.
func (v *Violation) Unwrap() error {
	if v.Rule == RuleRoomAvailable {
		return ErrRoomConflict
	}
	return ErrInvalidBooking
}

func (v *Violation) IsConflict() bool {
	return v.Rule == RuleRoomAvailable
}
