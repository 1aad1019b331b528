package workers

import (
	"fmt"
	"time"

	"mvrv/pkg/errors"
)

// Schedule computes when a worker is next due
type Schedule interface {
	// Next returns the first due instant strictly after t
	Next(t time.Time) time.Time
	String() string
}

type interval struct {
	every time.Duration
}

// Every returns a fixed-interval schedule
func Every(d time.Duration) Schedule {
	return interval{every: d}
}

func (s interval) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

func (s interval) String() string {
	return "every " + s.every.String()
}

type daily struct {
	hour, minute int
	loc          *time.Location
}

// DailyAt returns a schedule firing once a day at clock ("HH:MM") in loc
func DailyAt(clock string, loc *time.Location) (Schedule, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "daily time %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "daily time %q out of range", clock)
	}
	if loc == nil {
		loc = time.UTC
	}
	return daily{hour: hour, minute: minute, loc: loc}, nil
}

func (s daily) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

func (s daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc)
}
