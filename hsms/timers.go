package hsms

import (
	"fmt"
	"time"
)

// TimerCode identifies an HSMS protocol timer in timeout events.
type TimerCode uint8

const (
	T3 TimerCode = 3 // reply timeout
	T5 TimerCode = 5 // connect separation timeout
	T6 TimerCode = 6 // control transaction timeout
	T7 TimerCode = 7 // not selected timeout
	T8 TimerCode = 8 // network inactivity timeout
)

func (c TimerCode) String() string {
	return fmt.Sprintf("T%d", uint8(c))
}

// Err returns the sentinel error of the timer, or nil for an unknown code.
func (c TimerCode) Err() error {
	switch c {
	case T3:
		return ErrT3Timeout
	case T5:
		return ErrT5Timeout
	case T6:
		return ErrT6Timeout
	case T7:
		return ErrT7Timeout
	case T8:
		return ErrT8Timeout
	default:
		return nil
	}
}

// Timer bounds. The lower bound is shared by every timer.
const (
	MinTimeout         = 10 * time.Millisecond
	MaxT3Timeout       = 120 * time.Second
	MaxT5Timeout       = 240 * time.Second
	MaxT6Timeout       = 240 * time.Second
	MaxT7Timeout       = 240 * time.Second
	MaxT8Timeout       = 120 * time.Second
	MaxLinktestTimeout = time.Hour
)

// Timers holds the HSMS timer durations and the linktest interval.
type Timers struct {
	T3       time.Duration // reply timeout
	T5       time.Duration // connect separation timeout
	T6       time.Duration // control transaction timeout
	T7       time.Duration // not selected timeout
	T8       time.Duration // network inactivity timeout
	LinkTest time.Duration // interval between linktest requests while selected
}

// DefaultTimers returns T3 45s, T5 10s, T6 5s, T7 10s, T8 20s and a linktest interval of 10s.
func DefaultTimers() Timers {
	return Timers{
		T3:       45 * time.Second,
		T5:       10 * time.Second,
		T6:       5 * time.Second,
		T7:       10 * time.Second,
		T8:       20 * time.Second,
		LinkTest: 10 * time.Second,
	}
}

// NewTimers creates Timers in the order t3, t5, t6, t7, t8 and linktest interval.
func NewTimers(t3, t5, t6, t7, t8, linkTest time.Duration) Timers {
	return Timers{T3: t3, T5: t5, T6: t6, T7: t7, T8: t8, LinkTest: linkTest}
}

// Validate checks every duration against its bounds.
func (t Timers) Validate() error {
	checks := []struct {
		name string
		d    time.Duration
		max  time.Duration
	}{
		{"t3", t.T3, MaxT3Timeout},
		{"t5", t.T5, MaxT5Timeout},
		{"t6", t.T6, MaxT6Timeout},
		{"t7", t.T7, MaxT7Timeout},
		{"t8", t.T8, MaxT8Timeout},
		{"linktest", t.LinkTest, MaxLinktestTimeout},
	}

	for _, c := range checks {
		if err := ValidateTimer(c.name, c.d, c.max); err != nil {
			return err
		}
	}

	return nil
}

// ValidateTimer checks that d is within [MinTimeout, maxDuration].
func ValidateTimer(name string, d time.Duration, maxDuration time.Duration) error {
	if d < MinTimeout || d > maxDuration {
		return fmt.Errorf("%w: %s timeout %v out of range [%v, %v]", ErrInvalidTimer, name, d, MinTimeout, maxDuration)
	}

	return nil
}
