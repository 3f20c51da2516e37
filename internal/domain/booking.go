package domain

import "time"

type AccessType string

const (
	AccessPublic  AccessType = "PUBLIC"
	AccessPrivate AccessType = "PRIVATE"
)

func (a AccessType) Valid() bool {
	return a == AccessPublic || a == AccessPrivate
}

type Booking struct {
	ID           int64
	Title        string
	Location     string
	Description  string
	RoomNumber   *int
	StartTime    time.Time
	EndTime      time.Time
	AccessType   AccessType
	AccessCode   string
	PublicKey    string
	PrivateKey   string
	Participants []Participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Participant is owned by exactly one Booking and carries no reference back to it.
type Participant struct {
	ID   int64
	Name string
}

// BookingSummary is the listing projection of a Booking. It never carries keys or the access code.
type BookingSummary struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Location   string     `json:"location"`
	RoomNumber *int       `json:"room_number,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	AccessType AccessType `json:"access_type"`
}

func (b *Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:         b.ID,
		Title:      b.Title,
		Location:   b.Location,
		RoomNumber: b.RoomNumber,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		AccessType: b.AccessType,
	}
}

func (b *Booking) IsPrivate() bool {
	return b.AccessType == AccessPrivate
}

func (b *Booking) ParticipantNames() []string {
	names := make([]string, 0, len(b.Participants))
	for _, p := range b.Participants {
		names = append(names, p.Name)
	}
	return names
}

func RoomPtr(room int) *int {
	return &room
}
