package ledger

import "fmt"

// Counter names a risk tally.
type Counter string

const (
	FocusLost      Counter = "focusLost"
	NoFace         Counter = "noFace"
	MultipleFaces  Counter = "multipleFaces"
	PhoneDetected  Counter = "phoneDetected"
	BookDetected   Counter = "bookDetected"
	DeviceDetected Counter = "deviceDetected"
)

// AllCounters lists every counter in display order.
var AllCounters = []Counter{FocusLost, NoFace, MultipleFaces, PhoneDetected, BookDetected, DeviceDetected}

// Counters holds the per-category tallies of a session.
type Counters struct {
	FocusLost      int `json:"focusLost"`
	NoFace         int `json:"noFace"`
	MultipleFaces  int `json:"multipleFaces"`
	PhoneDetected  int `json:"phoneDetected"`
	BookDetected   int `json:"bookDetected"`
	DeviceDetected int `json:"deviceDetected"`
}

func (c *Counters) field(name Counter) (*int, error) {
	switch name {
	case FocusLost:
		return &c.FocusLost, nil
	case NoFace:
		return &c.NoFace, nil
	case MultipleFaces:
		return &c.MultipleFaces, nil
	case PhoneDetected:
		return &c.PhoneDetected, nil
	case BookDetected:
		return &c.BookDetected, nil
	case DeviceDetected:
		return &c.DeviceDetected, nil
	}
	return nil, fmt.Errorf("ledger: unknown counter %q", name)
}

// Get returns the named tally, or 0 for an unknown name.
func (c Counters) Get(name Counter) int {
	p, err := c.field(name)
	if err != nil {
		return 0
	}
	return *p
}

// Objects returns the sum of the prohibited-object tallies.
func (c Counters) Objects() int {
	return c.PhoneDetected + c.BookDetected + c.DeviceDetected
}

// Suspicious returns every tally except focus lost.
func (c Counters) Suspicious() int {
	return c.NoFace + c.MultipleFaces + c.Objects()
}

// Total returns the sum of all tallies.
func (c Counters) Total() int {
	return c.FocusLost + c.Suspicious()
}

// Score penalties.
const (
	PenaltyFocusLost     = 5
	PenaltyNoFace        = 10
	PenaltyMultipleFaces = 15
	PenaltyObject        = 10
)

// Penalty returns the score deduction for one occurrence of name.
func Penalty(name Counter) int {
	switch name {
	case FocusLost:
		return PenaltyFocusLost
	case NoFace:
		return PenaltyNoFace
	case MultipleFaces:
		return PenaltyMultipleFaces
	case PhoneDetected, BookDetected, DeviceDetected:
		return PenaltyObject
	}
	return 0
}

// Score derives the 0-100 integrity score from c.
func Score(c Counters) int {
	s := 100 -
		PenaltyFocusLost*c.FocusLost -
		PenaltyNoFace*c.NoFace -
		PenaltyMultipleFaces*c.MultipleFaces -
		PenaltyObject*c.Objects()
	if s < 0 {
		return 0
	}
	return s
}
