package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	ErrInvalidRange    = errors.New("invalid range")
	ErrUnknownSelector = errors.New("unknown period selector")
)

type Selector string

const (
	SelectorToday  Selector = "today"
	SelectorWeek   Selector = "week"
	SelectorMonth  Selector = "month"
	SelectorAll    Selector = "all"
	SelectorCustom Selector = "custom"
)

func ParseSelector(raw string) (Selector, error) {
	switch sel := Selector(strings.ToLower(strings.TrimSpace(raw))); sel {
	case SelectorToday, SelectorWeek, SelectorMonth, SelectorAll, SelectorCustom:
		return sel, nil
	case "":
		return SelectorToday, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSelector, raw)
	}
}

// Period selects a window. Start and End are only read for SelectorCustom.
type Period struct {
	Selector Selector
	Start    civil.Date
	End      civil.Date
}

// Window is a resolved time range. When InclusiveEnd is set, End is the last
// included instant (custom ranges and the periods running up to now);
// otherwise End is exclusive.
type Window struct {
	Selector     Selector  `json:"selector"`
	Label        string    `json:"label"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	InclusiveEnd bool      `json:"inclusive_end"`
}

func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	if w.InclusiveEnd {
		return !t.After(w.End)
	}
	return t.Before(w.End)
}

// Days returns the first and last calendar day the window touches, used for
// date-only comparisons.
func (w Window) Days() (civil.Date, civil.Date) {
	last := w.End
	if !w.InclusiveEnd && last.After(w.Start) {
		last = last.Add(-time.Nanosecond)
	}
	return civil.DateOf(w.Start), civil.DateOf(last)
}

// ContainsDate reports whether d falls between the window's first and last
// calendar day, both inclusive.
func (w Window) ContainsDate(d civil.Date) bool {
	first, last := w.Days()
	return !d.Before(first) && !d.After(last)
}

func ResolveWindow(period Period, now time.Time) (Window, error) {
	loc := now.Location()
	today := civil.DateOf(now)

	var w Window
	switch period.Selector {
	case SelectorToday, "":
		start := today.In(loc)
		w = Window{
			Selector: SelectorToday,
			Label:    today.String(),
			Start:    start,
			End:      today.AddDays(1).In(loc),
		}
	case SelectorWeek:
		monday := today.AddDays(-(isoWeekday(now.Weekday()) - 1))
		w = Window{
			Selector:     SelectorWeek,
			Label:        fmt.Sprintf("%s..%s", monday, today),
			Start:        monday.In(loc),
			End:          now,
			InclusiveEnd: true,
		}
	case SelectorMonth:
		first := civil.Date{Year: today.Year, Month: today.Month, Day: 1}
		w = Window{
			Selector:     SelectorMonth,
			Label:        monthLabel(first),
			Start:        first.In(loc),
			End:          now,
			InclusiveEnd: true,
		}
	case SelectorAll:
		w = Window{
			Selector:     SelectorAll,
			Label:        "all",
			Start:        time.Unix(0, 0).In(loc),
			End:          now,
			InclusiveEnd: true,
		}
	case SelectorCustom:
		if !period.Start.IsValid() || !period.End.IsValid() {
			return Window{}, fmt.Errorf("%w: custom range requires start and end dates", ErrInvalidRange)
		}
		if period.Start.After(period.End) {
			return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, period.Start, period.End)
		}
		w = Window{
			Selector:     SelectorCustom,
			Label:        fmt.Sprintf("%s..%s", period.Start, period.End),
			Start:        period.Start.In(loc),
			End:          period.End.AddDays(1).In(loc).Add(-time.Millisecond),
			InclusiveEnd: true,
		}
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownSelector, period.Selector)
	}

	if w.Start.After(w.End) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return w, nil
}

// previousMonth is the full calendar month before the one containing now.
func previousMonth(now time.Time) Window {
	loc := now.Location()
	today := civil.DateOf(now)
	currentFirst := civil.Date{Year: today.Year, Month: today.Month, Day: 1}
	prevFirst := civil.DateOf(time.Date(today.Year, today.Month-1, 1, 0, 0, 0, 0, loc))
	return Window{
		Selector: SelectorMonth,
		Label:    monthLabel(prevFirst),
		Start:    prevFirst.In(loc),
		End:      currentFirst.In(loc),
	}
}

func isoWeekday(day time.Weekday) int {
	if day == time.Sunday {
		return 7
	}
	return int(day)
}

func monthLabel(first civil.Date) string {
	return fmt.Sprintf("%04d-%02d", first.Year, int(first.Month))
}
