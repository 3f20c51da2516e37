package booking

import (
	"regexp"
	"strings"
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
	"golang.org/x/text/unicode/norm"
)

const (
	msgTimesRequired        = "Start time and end time are required"
	msgEndAfterStart        = "End time must be after the start time"
	msgStartInFuture        = "Start time must be in the future"
	msgEndInFuture          = "End time must be in the future"
	msgRoomConflict         = "The selected room and time slot conflicts with an existing reservation"
	msgAccessCodeRequired   = "Private reservations require an access code"
	msgParticipantsRequired = "At least one participant is required"
	msgParticipantName      = "Participant names may only contain letters and spaces"
	msgParticipantBlank     = "Participant name is required"
	msgTitleRequired        = "Title is required"
	msgLocationRequired     = "Location is required"
	msgDescriptionRequired  = "Description is required"
	msgAccessType           = "Access type must be PUBLIC or PRIVATE"
)

var participantNameRegex = regexp.MustCompile(`^[A-Za-zÄÖÜäöüß]+(?: [A-Za-zÄÖÜäöüß]+)*$`)

// BookingInput is the caller-supplied shape of a booking before validation.
type BookingInput struct {
	Title        string            `json:"title"`
	Location     string            `json:"location"`
	Description  string            `json:"description"`
	RoomNumber   *int              `json:"room_number,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	AccessType   domain.AccessType `json:"access_type"`
	AccessCode   string            `json:"access_code,omitempty"`
	Participants []string          `json:"participants"`
}

type BookingValidator struct {
	now func() time.Time
}

func NewBookingValidator(now func() time.Time) *BookingValidator {
	if now == nil {
		now = time.Now
	}
	return &BookingValidator{now: now}
}

// check inspects a draft and returns nil when it passes.
type check func(c *checkContext) *domain.Violation

type checkContext struct {
	input     *BookingInput
	existing  []domain.Booking
	excludeID int64
	now       time.Time
	names     []string
}

// Order matters: the first failing check is the one reported.
var bookingChecks = []check{
	checkTimesPresent,
	checkEndAfterStart,
	checkStartInFuture,
	checkEndInFuture,
	checkRoomAvailable,
	checkAccessCode,
	checkParticipantsPresent,
	checkParticipantNames,
	checkTitle,
	checkLocation,
	checkDescription,
	checkAccessType,
}

func (v *BookingValidator) ValidateCreate(input BookingInput, existing []domain.Booking) (*domain.Booking, error) {
	return v.validate(input, existing, 0)
}

// ValidateUpdate expects the caller to have authorized the change already.
func (v *BookingValidator) ValidateUpdate(id int64, input BookingInput, existing []domain.Booking) (*domain.Booking, error) {
	b, err := v.validate(input, existing, id)
	if err != nil {
		return nil, err
	}
	b.ID = id
	return b, nil
}

func (v *BookingValidator) validate(input BookingInput, existing []domain.Booking, excludeID int64) (*domain.Booking, error) {
	// Stores keep millisecond precision; the returned booking must match what a later read yields.
	input.StartTime = input.StartTime.Truncate(time.Millisecond)
	input.EndTime = input.EndTime.Truncate(time.Millisecond)

	c := &checkContext{
		input:     &input,
		existing:  existing,
		excludeID: excludeID,
		now:       v.now(),
	}
	for _, chk := range bookingChecks {
		if violation := chk(c); violation != nil {
			return nil, violation
		}
	}

	participants := make([]domain.Participant, 0, len(c.names))
	for _, name := range c.names {
		participants = append(participants, domain.Participant{Name: name})
	}

	accessCode := input.AccessCode
	if input.AccessType != domain.AccessPrivate {
		accessCode = ""
	}

	return &domain.Booking{
		Title:        strings.TrimSpace(input.Title),
		Location:     strings.TrimSpace(input.Location),
		Description:  strings.TrimSpace(input.Description),
		RoomNumber:   input.RoomNumber,
		StartTime:    input.StartTime,
		EndTime:      input.EndTime,
		AccessType:   input.AccessType,
		AccessCode:   accessCode,
		Participants: participants,
	}, nil
}

func violation(rule domain.Rule, field, message string) *domain.Violation {
	return &domain.Violation{Rule: rule, Field: field, Message: message}
}

func checkTimesPresent(c *checkContext) *domain.Violation {
	if c.input.StartTime.IsZero() || c.input.EndTime.IsZero() {
		return violation(domain.RuleTimesRequired, "start_time", msgTimesRequired)
	}
	return nil
}

func checkEndAfterStart(c *checkContext) *domain.Violation {
	if !c.input.EndTime.After(c.input.StartTime) {
		return violation(domain.RuleEndAfterStart, "end_time", msgEndAfterStart)
	}
	return nil
}

func checkStartInFuture(c *checkContext) *domain.Violation {
	if !c.input.StartTime.After(c.now) {
		return violation(domain.RuleStartInFuture, "start_time", msgStartInFuture)
	}
	return nil
}

func checkEndInFuture(c *checkContext) *domain.Violation {
	if !c.input.EndTime.After(c.now) {
		return violation(domain.RuleEndInFuture, "end_time", msgEndInFuture)
	}
	return nil
}

// Bookings without a room are never checked for conflicts.
func checkRoomAvailable(c *checkContext) *domain.Violation {
	if c.input.RoomNumber == nil {
		return nil
	}
	if HasConflict(*c.input.RoomNumber, c.input.StartTime, c.input.EndTime, c.existing, c.excludeID) {
		return violation(domain.RuleRoomAvailable, "room_number", msgRoomConflict)
	}
	return nil
}

func checkAccessCode(c *checkContext) *domain.Violation {
	if c.input.AccessType == domain.AccessPrivate && strings.TrimSpace(c.input.AccessCode) == "" {
		return violation(domain.RuleAccessCodeRequired, "access_code", msgAccessCodeRequired)
	}
	return nil
}

func checkParticipantsPresent(c *checkContext) *domain.Violation {
	if len(c.input.Participants) == 0 {
		return violation(domain.RuleParticipantsRequired, "participants", msgParticipantsRequired)
	}
	return nil
}

func checkParticipantNames(c *checkContext) *domain.Violation {
	names := make([]string, 0, len(c.input.Participants))
	for _, raw := range c.input.Participants {
		name := NormalizeParticipantName(raw)
		if name == "" {
			return violation(domain.RuleParticipantName, "participants", msgParticipantBlank)
		}
		if !participantNameRegex.MatchString(name) {
			return violation(domain.RuleParticipantName, "participants", msgParticipantName)
		}
		names = append(names, name)
	}
	c.names = names
	return nil
}

func checkTitle(c *checkContext) *domain.Violation {
	if strings.TrimSpace(c.input.Title) == "" {
		return violation(domain.RuleTitleRequired, "title", msgTitleRequired)
	}
	return nil
}

func checkLocation(c *checkContext) *domain.Violation {
	if strings.TrimSpace(c.input.Location) == "" {
		return violation(domain.RuleLocationRequired, "location", msgLocationRequired)
	}
	return nil
}

func checkDescription(c *checkContext) *domain.Violation {
	if strings.TrimSpace(c.input.Description) == "" {
		return violation(domain.RuleDescriptionRequired, "description", msgDescriptionRequired)
	}
	return nil
}

func checkAccessType(c *checkContext) *domain.Violation {
	if !c.input.AccessType.Valid() {
		return violation(domain.RuleAccessType, "access_type", msgAccessType)
	}
	return nil
}

// NormalizeParticipantName composes accents (so "u" + combining diaeresis becomes "ü") and trims.
func NormalizeParticipantName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// ParseParticipants splits a comma separated list, dropping blank entries.
func ParseParticipants(text string) []string {
	names := make([]string, 0)
	for _, part := range strings.Split(text, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
