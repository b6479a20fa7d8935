package vo

import "fmt"

// Priority represents a caching priority value object.
// Lower rank indicates higher priority.
type Priority struct {
	rank int
}

// Priority constants (lower rank = higher priority)
var (
	PriorityHigh   = Priority{rank: 1} // Kept warm and preloaded
	PriorityMedium = Priority{rank: 2}
	PriorityLow    = Priority{rank: 3} // First to be reclaimed
)

// ParsePriority parses a priority name as stored in the database.
func ParsePriority(name string) (Priority, error) {
	switch name {
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityLow, fmt.Errorf("invalid priority: %q", name)
	}
}

// Rank returns the numeric rank, 1 being the highest priority.
func (p Priority) Rank() int {
	if p.rank == 0 {
		return PriorityLow.rank
	}
	return p.rank
}

// String returns the lowercase name used in storage and APIs.
func (p Priority) String() string {
	switch p.Rank() {
	case 1:
		return "high"
	case 2:
		return "medium"
	default:
		return "low"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// HigherThan returns true if this priority is higher than other.
func (p Priority) HigherThan(other Priority) bool {
	return p.Rank() < other.Rank()
}

// LowerThan returns true if this priority is lower than other.
func (p Priority) LowerThan(other Priority) bool {
	return p.Rank() > other.Rank()
}

// Equals returns true if both priorities are equal.
func (p Priority) Equals(other Priority) bool {
	return p.Rank() == other.Rank()
}

// IsHigh returns true for high priority.
func (p Priority) IsHigh() bool {
	return p.Rank() == PriorityHigh.rank
}

// IsLow returns true for low priority. The zero value is low.
func (p Priority) IsLow() bool {
	return p.Rank() == PriorityLow.rank
}
