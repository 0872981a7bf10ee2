package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelsAndTerminal(t *testing.T) {
	assert.Equal(t, "Pending", Pending.Label())
	assert.Equal(t, "Blocked", Blocked.Label())
	assert.Equal(t, "Unknown", Code(42).Label())

	assert.False(t, Pending.Terminal())
	assert.False(t, Delivered.Terminal())
	assert.True(t, Seen.Terminal())
	assert.True(t, Expired.Terminal())
	assert.True(t, Blocked.Terminal())
}

func TestTrackAndUpdate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(WithClock(func() time.Time { return now }))

	tr.Track("m1", time.Time{})
	rec, ok := tr.Get("m1")
	require.True(t, ok)
	assert.Equal(t, Pending, rec.Status)

	require.True(t, tr.Update("m1", Delivered))
	require.True(t, tr.Update("m1", Seen))

	rec, ok = tr.Get("m1")
	require.True(t, ok)
	assert.Equal(t, Seen, rec.Status)
	require.Len(t, rec.History, 3)
	assert.Equal(t, Pending, rec.History[0].Status)
	assert.Equal(t, Delivered, rec.History[1].Status)
	assert.Equal(t, Seen, rec.History[2].Status)

	assert.False(t, tr.Update("unknown", Seen))
	_, ok = tr.Get("unknown")
	assert.False(t, ok)
}

func TestLazyExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(WithClock(func() time.Time { return now }))

	tr.Track("m1", now.Add(time.Hour))

	rec, _ := tr.Get("m1")
	assert.Equal(t, Pending, rec.Status)

	now = now.Add(2 * time.Hour)
	rec, _ = tr.Get("m1")
	assert.Equal(t, Expired, rec.Status)
	assert.Equal(t, Expired, rec.History[len(rec.History)-1].Status)
}

func TestExpiryDoesNotOverrideDelivery(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(WithClock(func() time.Time { return now }))

	tr.Track("m1", now.Add(time.Hour))
	tr.Update("m1", Delivered)

	now = now.Add(2 * time.Hour)
	rec, _ := tr.Get("m1")
	assert.Equal(t, Delivered, rec.Status)
}

func TestSubscribe(t *testing.T) {
	tr := NewTracker()
	tr.Track("m1", time.Time{})

	var got []Code
	unsub := tr.Subscribe("m1", func(r Record) { got = append(got, r.Status) })

	tr.Update("m1", Delivered)
	tr.Update("m1", Seen)
	assert.Equal(t, []Code{Delivered, Seen}, got)

	unsub()
	tr.Update("m1", Blocked)
	assert.Equal(t, []Code{Delivered, Seen}, got, "no delivery after unsubscribe")
}

func TestForget(t *testing.T) {
	tr := NewTracker()
	tr.Track("m1", time.Time{})
	tr.Forget("m1")
	_, ok := tr.Get("m1")
	assert.False(t, ok)
}
