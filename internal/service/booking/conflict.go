package booking

import (
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
)

// HasConflict reports whether [start, end) overlaps any other booking in the same room.
// excludeID removes the booking being updated from the comparison; zero excludes nothing.
func HasConflict(room int, start, end time.Time, candidates []domain.Booking, excludeID int64) bool {
	for i := range candidates {
		c := &candidates[i]
		if c.RoomNumber == nil || *c.RoomNumber != room {
			continue
		}
		if excludeID != 0 && c.ID == excludeID {
			continue
		}
		if overlaps(start, end, c.StartTime, c.EndTime) {
			return true
		}
	}
	return false
}

func overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}
