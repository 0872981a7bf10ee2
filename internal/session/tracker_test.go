package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(NewMemoryStore(), WithClock(clock.Now)), clock
}

func TestValidateWithoutSession(t *testing.T) {
	tr, _ := newTestTracker()
	v, err := tr.Validate("+15551234567")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "No active session", v.Reason)
}

func TestStartSessionReplacesPrior(t *testing.T) {
	tr, _ := newTestTracker()
	key := "+15551234567"

	_, err := tr.StartSession(key)
	require.NoError(t, err)
	ok, err := tr.RecordOutbound(key)
	require.NoError(t, err)
	require.True(t, ok)

	s2, err := tr.StartSession(key)
	require.NoError(t, err)
	assert.Zero(t, s2.MessageCount)
	assert.Zero(t, s2.ConsecutiveMessages)

	stats, err := tr.Stats(key)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Zero(t, stats.MessageCount)
}

func TestRecordOutboundRequiresSession(t *testing.T) {
	tr, _ := newTestTracker()
	ok, err := tr.RecordOutbound("+15550000001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordOutboundMonotonic(t *testing.T) {
	tr, _ := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		ok, err := tr.RecordOutbound(key)
		require.NoError(t, err)
		require.True(t, ok)

		stats, err := tr.Stats(key)
		require.NoError(t, err)
		assert.Equal(t, i, stats.MessageCount)
		assert.Equal(t, i, stats.ConsecutiveMessages)
	}
}

func TestInboundReplyResetsCounters(t *testing.T) {
	tr, _ := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, err := tr.RecordOutbound(key)
		require.NoError(t, err)
	}
	ok, err := tr.RecordInboundReply(key)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := tr.Stats(key)
	require.NoError(t, err)
	assert.Zero(t, stats.ConsecutiveMessages)
	assert.Zero(t, stats.MessageCount)
	assert.Equal(t, 1, stats.UserReplies)
}

func TestResetOnUserReplyDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.ResetOnUserReply = false
	tr := NewTracker(NewMemoryStore(), WithClock(clock.Now), WithConfig(cfg))

	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)
	_, err = tr.RecordOutbound(key)
	require.NoError(t, err)
	_, err = tr.RecordInboundReply(key)
	require.NoError(t, err)

	stats, err := tr.Stats(key)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageCount)
	assert.Zero(t, stats.ConsecutiveMessages)
}

func TestMessageLimitBoundary(t *testing.T) {
	// Raise the consecutive limit so only the 60-message cap is in play.
	cfg := DefaultConfig()
	cfg.MaxConsecutive = 1000
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(NewMemoryStore(), WithClock(clock.Now), WithConfig(cfg))

	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)
	for i := 0; i < 59; i++ {
		_, err := tr.RecordOutbound(key)
		require.NoError(t, err)
	}

	v, err := tr.Validate(key)
	require.NoError(t, err)
	assert.True(t, v.Valid, "59 messages should still validate")

	_, err = tr.RecordOutbound(key)
	require.NoError(t, err)
	v, err = tr.Validate(key)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "Message limit reached", v.Reason)
}

func TestConsecutiveLimitBoundary(t *testing.T) {
	tr, _ := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		_, err := tr.RecordOutbound(key)
		require.NoError(t, err)
	}
	v, err := tr.Validate(key)
	require.NoError(t, err)
	assert.True(t, v.Valid, "9 consecutive should still validate")

	_, err = tr.RecordOutbound(key)
	require.NoError(t, err)
	v, err = tr.Validate(key)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "Consecutive message limit reached", v.Reason)

	// a reply reopens the window
	_, err = tr.RecordInboundReply(key)
	require.NoError(t, err)
	v, err = tr.Validate(key)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestExpiryBoundary(t *testing.T) {
	tr, clock := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	v, err := tr.Validate(key)
	require.NoError(t, err)
	assert.True(t, v.Valid, "exactly 24h should still validate")

	clock.Advance(time.Second)
	v, err = tr.Validate(key)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "Session expired", v.Reason)
}

func TestReplyDoesNotExtendExpiry(t *testing.T) {
	tr, clock := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	_, err = tr.RecordInboundReply(key)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	v, err := tr.Validate(key)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "Session expired", v.Reason)
}

func TestStatsNilWithoutSession(t *testing.T) {
	tr, _ := newTestTracker()
	stats, err := tr.Stats("+15550000002")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestStatsRemainingCounts(t *testing.T) {
	tr, clock := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := tr.RecordOutbound(key)
		require.NoError(t, err)
	}
	clock.Advance(90 * time.Minute)

	stats, err := tr.Stats(key)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 90*time.Minute, stats.Duration)
	assert.Equal(t, 57, stats.RemainingMessages)
	assert.Equal(t, 7, stats.RemainingConsecutive)
}

func TestDailyCount(t *testing.T) {
	tr, clock := newTestTracker()
	key := "+15551234567"
	_, err := tr.StartSession(key)
	require.NoError(t, err)

	_, err = tr.RecordOutbound(key)
	require.NoError(t, err)
	_, err = tr.RecordOutbound(key)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.DailyCount(clock.Now()))
	assert.Equal(t, 0, tr.DailyCount(clock.Now().AddDate(0, 0, 1)))
}

func TestConcurrentDistinctKeys(t *testing.T) {
	tr, _ := newTestTracker()
	keys := []string{"+15550000001", "+15550000002", "+15550000003", "+15550000004"}
	for _, k := range keys {
		_, err := tr.StartSession(k)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				_, _ = tr.RecordOutbound(key)
			}
		}(k)
	}
	wg.Wait()

	for _, k := range keys {
		stats, err := tr.Stats(k)
		require.NoError(t, err)
		assert.Equal(t, 8, stats.MessageCount, "key %s", k)
	}
}

func TestKeyLockEntriesDoNotAccumulate(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("+1555%07d", i)
		_, err := tr.StartSession(key)
		require.NoError(t, err)
		_, err = tr.RecordOutbound(key)
		require.NoError(t, err)
		require.NoError(t, tr.EndSession(key))
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.locks)
}
