package accounting

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestResolveWindowToday(t *testing.T) {
	w, err := ResolveWindow(Period{Selector: SelectorToday}, at("2024-03-15T10:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, at("2024-03-15T00:00:00Z"), w.Start)
	assert.Equal(t, at("2024-03-16T00:00:00Z"), w.End)
	assert.False(t, w.InclusiveEnd)
	assert.True(t, w.Contains(at("2024-03-15T23:59:59.999Z")))
	assert.False(t, w.Contains(at("2024-03-16T00:00:00Z")))
	assert.False(t, w.Contains(at("2024-03-14T23:59:59Z")))

	first, last := w.Days()
	assert.Equal(t, civil.Date{Year: 2024, Month: time.March, Day: 15}, first)
	assert.Equal(t, first, last)
}

func TestResolveWindowWeekStartsMonday(t *testing.T) {
	cases := []struct {
		now  string
		want string
	}{
		{now: "2024-03-15T10:00:00Z", want: "2024-03-11T00:00:00Z"}, // Friday
		{now: "2024-03-17T08:30:00Z", want: "2024-03-11T00:00:00Z"}, // Sunday
		{now: "2024-03-11T00:00:01Z", want: "2024-03-11T00:00:00Z"}, // Monday
		{now: "2024-03-01T12:00:00Z", want: "2024-02-26T00:00:00Z"}, // crosses month
	}
	for _, tc := range cases {
		w, err := ResolveWindow(Period{Selector: SelectorWeek}, at(tc.now))
		require.NoError(t, err, tc.now)
		assert.Equal(t, at(tc.want), w.Start, tc.now)
		assert.Equal(t, at(tc.now), w.End, tc.now)
	}
}

func TestResolveWindowMonthAndAll(t *testing.T) {
	now := at("2024-03-15T10:00:00Z")

	month, err := ResolveWindow(Period{Selector: SelectorMonth}, now)
	require.NoError(t, err)
	assert.Equal(t, at("2024-03-01T00:00:00Z"), month.Start)
	assert.Equal(t, now, month.End)
	assert.Equal(t, "2024-03", month.Label)

	all, err := ResolveWindow(Period{Selector: SelectorAll}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), all.Start)
	assert.Equal(t, now, all.End)
}

func TestResolveWindowUsesLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, time.March, 15, 1, 30, 0, 0, loc)

	w, err := ResolveWindow(Period{Selector: SelectorToday}, now)
	require.NoError(t, err)
	assert.True(t, w.Start.Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, loc)))
	assert.True(t, w.End.Equal(time.Date(2024, time.March, 16, 0, 0, 0, 0, loc)))
}

func TestResolveWindowCustomIsInclusive(t *testing.T) {
	w, err := ResolveWindow(Period{
		Selector: SelectorCustom,
		Start:    civil.Date{Year: 2024, Month: time.March, Day: 1},
		End:      civil.Date{Year: 2024, Month: time.March, Day: 5},
	}, at("2024-03-15T10:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, at("2024-03-01T00:00:00Z"), w.Start)
	assert.Equal(t, at("2024-03-05T23:59:59.999Z"), w.End)
	assert.True(t, w.InclusiveEnd)
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(at("2024-03-06T00:00:00Z")))

	first, last := w.Days()
	assert.Equal(t, 1, first.Day)
	assert.Equal(t, 5, last.Day)
}

func TestResolveWindowRejectsInvertedRanges(t *testing.T) {
	_, err := ResolveWindow(Period{
		Selector: SelectorCustom,
		Start:    civil.Date{Year: 2024, Month: time.March, Day: 6},
		End:      civil.Date{Year: 2024, Month: time.March, Day: 5},
	}, at("2024-03-15T10:00:00Z"))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = ResolveWindow(Period{Selector: SelectorCustom}, at("2024-03-15T10:00:00Z"))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = ResolveWindow(Period{Selector: SelectorAll}, at("1969-12-31T00:00:00Z"))
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestParseSelector(t *testing.T) {
	sel, err := ParseSelector(" Month ")
	require.NoError(t, err)
	assert.Equal(t, SelectorMonth, sel)

	sel, err = ParseSelector("")
	require.NoError(t, err)
	assert.Equal(t, SelectorToday, sel)

	_, err = ParseSelector("fortnight")
	require.ErrorIs(t, err, ErrUnknownSelector)
}

func TestPreviousMonthCrossesYear(t *testing.T) {
	w := previousMonth(at("2024-01-20T09:00:00Z"))
	assert.Equal(t, at("2023-12-01T00:00:00Z"), w.Start)
	assert.Equal(t, at("2024-01-01T00:00:00Z"), w.End)
	assert.Equal(t, "2023-12", w.Label)
}
