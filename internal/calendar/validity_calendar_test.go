package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSetActiveAndCheck(t *testing.T) {
	c := New(epoch)

	require.NoError(t, c.SetActive(epoch))
	require.NoError(t, c.SetActive(epoch.AddDate(0, 0, 42)))

	assert.True(t, c.Check(0))
	assert.True(t, c.Check(42))
	assert.False(t, c.Check(1))
	assert.False(t, c.Check(41))
}

func TestCheckOutOfRangeIsInactive(t *testing.T) {
	c := New(epoch)
	require.NoError(t, c.SetActiveDay(0))

	assert.False(t, c.Check(-1))
	assert.False(t, c.Check(MaxDays))
	assert.False(t, c.Check(MaxDays+100))
}

func TestDayOffsetValidation(t *testing.T) {
	c := New(epoch)

	tests := []struct {
		name    string
		date    time.Time
		want    int
		wantErr bool
	}{
		{name: "epoch itself", date: epoch, want: 0},
		{name: "mid range", date: epoch.AddDate(0, 0, 100), want: 100},
		{name: "last day", date: epoch.AddDate(0, 0, MaxDays-1), want: MaxDays - 1},
		{name: "before epoch", date: epoch.AddDate(0, 0, -1), wantErr: true},
		{name: "past capacity", date: epoch.AddDate(0, 0, MaxDays), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.DayOffset(tt.date)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayOffsetIgnoresTimeOfDay(t *testing.T) {
	c := New(epoch)

	late := epoch.AddDate(0, 0, 5).Add(23*time.Hour + 59*time.Minute)
	off, err := c.DayOffset(late)
	require.NoError(t, err)
	assert.Equal(t, 5, off)
}

func TestSetInactive(t *testing.T) {
	c := New(epoch)
	require.NoError(t, c.SetActiveDay(7))
	require.NoError(t, c.SetInactiveDay(7))
	assert.False(t, c.Check(7))
}

func TestDifference(t *testing.T) {
	a := New(epoch)
	b := New(epoch)
	for _, d := range []int{1, 2, 3, 64, 65} {
		require.NoError(t, a.SetActiveDay(d))
	}
	require.NoError(t, b.SetActiveDay(2))
	require.NoError(t, b.SetActiveDay(64))

	diff, err := a.Difference(b)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 65}, diff.ActiveDays())
}

func TestUnion(t *testing.T) {
	a := New(epoch)
	b := New(epoch)
	require.NoError(t, a.SetActiveDay(0))
	require.NoError(t, b.SetActiveDay(300))

	u, err := a.Union(b)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 300}, u.ActiveDays())
}

func TestMismatchedEpochs(t *testing.T) {
	a := New(epoch)
	b := New(epoch.AddDate(0, 0, 1))

	_, err := a.Difference(b)
	assert.Error(t, err)

	_, err = a.Union(b)
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	a := New(epoch)
	require.NoError(t, a.SetActiveDay(10))

	b := a.Clone()
	require.NoError(t, b.SetInactiveDay(10))

	assert.True(t, a.Check(10))
	assert.False(t, b.Check(10))
}

func TestWordsRoundTrip(t *testing.T) {
	a := New(epoch)
	for _, d := range []int{0, 63, 64, 127, 365} {
		require.NoError(t, a.SetActiveDay(d))
	}

	b := New(epoch)
	require.NoError(t, b.SetWords(a.Words()))
	assert.True(t, a.Equal(b))
}

func TestEmpty(t *testing.T) {
	c := New(epoch)
	assert.True(t, c.Empty())
	require.NoError(t, c.SetActiveDay(365))
	assert.False(t, c.Empty())
	c.Clear()
	assert.True(t, c.Empty())
}
