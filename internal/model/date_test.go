package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.January, Day: 15}, d)
	assert.Equal(t, "2025-01-15", d.String())

	_, err = ParseDate("2025-13-01")
	assert.Error(t, err)
}

func TestDateArithmetic(t *testing.T) {
	d := MustParseDate("2025-01-31")
	assert.Equal(t, MustParseDate("2025-02-01"), d.AddDays(1))
	assert.Equal(t, MustParseDate("2024-12-31"), MustParseDate("2025-01-01").AddDays(-1))
	assert.Equal(t, MustParseDate("2024-03-01"), MustParseDate("2024-02-28").AddDays(2), "leap year")
	assert.Equal(t, time.Wednesday, MustParseDate("2025-01-15").Weekday())
}

func TestDateCompare(t *testing.T) {
	a := MustParseDate("2025-01-15")
	b := MustParseDate("2025-02-01")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.False(t, a.Before(a))
}

func TestDateJSON(t *testing.T) {
	w := TimeWindow{Since: MustParseDate("2025-01-15"), Until: MustParseDate("2025-02-01")}
	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"since":"2025-01-15","until":"2025-02-01"}`, string(b))

	var back TimeWindow
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, w, back)
}

func TestTimeWindowHalfOpen(t *testing.T) {
	w := TimeWindow{Since: MustParseDate("2025-01-15"), Until: MustParseDate("2025-02-01")}

	assert.True(t, w.Contains(w.Since), "since is inclusive")
	assert.False(t, w.Contains(w.Until), "until is exclusive")
	assert.True(t, w.Contains(MustParseDate("2025-01-31")))
	assert.False(t, w.Contains(MustParseDate("2025-01-14")))
	assert.Equal(t, 17, w.Days())
}

func TestTimeWindowContainsTimeUsesUTC(t *testing.T) {
	w := TimeWindow{Since: MustParseDate("2025-01-15"), Until: MustParseDate("2025-01-16")}
	late := time.Date(2025, 1, 15, 23, 30, 0, 0, time.FixedZone("W", -3600))

	assert.False(t, w.ContainsTime(late), "23:30 at UTC-1 is the 16th in UTC")
	assert.True(t, w.ContainsTime(time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC)))
}

func TestTimeWindowEmpty(t *testing.T) {
	d := MustParseDate("2025-01-15")
	assert.True(t, TimeWindow{Since: d, Until: d}.Empty())
	assert.True(t, TimeWindow{Since: d, Until: d.AddDays(-1)}.Empty())
	assert.Equal(t, 0, TimeWindow{Since: d, Until: d.AddDays(-1)}.Days())
}
