package sanitizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chat-sanitizer/internal/corruption"
	"chat-sanitizer/internal/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupConversation_Redact(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	svc := NewService(store, Options{Clock: testClock})

	flagged, err := svc.Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	for _, f := range flagged {
		assert.Equal(t, corruption.ReasonRepetitivePattern, f.Reason)
	}

	summary, err := svc.CleanupConversation(context.Background(), "conv-1", false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 5, Corrupted: 2, Cleaned: 2}, *summary)

	for _, id := range []string{"m2", "m4"} {
		m, _ := store.Get(id)
		assert.Equal(t, corruption.RedactedText, m.Text)
		assert.True(t, m.IsCorrupted)
		require.NotNil(t, m.OriginalText)
		assert.Equal(t, repetitiveK, *m.OriginalText)
	}
	for _, id := range []string{"m1", "m3", "m5"} {
		m, _ := store.Get(id)
		assert.False(t, m.IsCorrupted)
		assert.Nil(t, m.OriginalText)
	}
}

func TestCleanupConversation_SecondPassReflagsRedacted(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	svc := NewService(store, Options{})

	_, err := svc.CleanupConversation(context.Background(), "conv-1", false)
	require.NoError(t, err)

	// 佔位文字本身是已知錯誤文字
	flagged, err := svc.Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	for _, f := range flagged {
		assert.Equal(t, corruption.ReasonErrorMessage, f.Reason)
	}

	summary, err := svc.CleanupConversation(context.Background(), "conv-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Cleaned)
	m, _ := store.Get("m2")
	assert.Equal(t, repetitiveK, *m.OriginalText, "original text is written once")

	skipping := NewService(store, Options{SkipRedacted: true})
	flagged, err = skipping.Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestCleanupConversation_SoftDelete(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	svc := NewService(store, Options{Clock: testClock})

	summary, err := svc.CleanupConversation(context.Background(), "conv-1", true)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 5, Corrupted: 2, Cleaned: 2}, *summary)

	m, _ := store.Get("m4")
	assert.True(t, m.Deleted)
	assert.Equal(t, "system", m.DeletedBy)
	assert.Equal(t, corruption.ReasonRepetitivePattern, m.DeleteReason)
	assert.Equal(t, repetitiveK, m.Text)
	assert.Equal(t, 1, store.CommitCalls())
}

func TestCleanupConversation_NothingToClean(t *testing.T) {
	store := newMemStore(t, newMessage("m1", "conv-1", "all good here"))
	svc := NewService(store, Options{})

	summary, err := svc.CleanupConversation(context.Background(), "conv-1", true)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1}, *summary)
	assert.Zero(t, store.CommitCalls())
	assert.Zero(t, store.UpdateCalls())
}

func TestCleanupConversation_CountFailure(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	boom := errors.New("count timeout")
	store.FailCount(boom)
	svc := NewService(store, Options{})

	summary, err := svc.CleanupConversation(context.Background(), "conv-1", false)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, ErrCountFailed)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.FindCalls(), "scan must not run after count failure")
	assert.Zero(t, store.Writes())
}

func TestCleanupConversation_ScanFailure(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	store.FailFind(errors.New("cursor killed"))
	svc := NewService(store, Options{})

	_, err := svc.CleanupConversation(context.Background(), "conv-1", true)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.Zero(t, store.CommitCalls())

	records := svc.History()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Error, "scan failed")
}

func TestCleanupConversation_PartialFailureIsNotAnError(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	store.FailUpdate("m2", errors.New("precondition failed"))
	svc := NewService(store, Options{})

	summary, err := svc.CleanupConversation(context.Background(), "conv-1", false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 5, Corrupted: 2, Cleaned: 1}, *summary)
}

func TestRun_Validation(t *testing.T) {
	store := newMemStore(t)
	svc := NewService(store, Options{})

	testCases := []struct {
		name string
		req  RunRequest
		want error
	}{
		{"missing conversation", RunRequest{ConversationID: "  ", Mode: ModeScan}, ErrMissingConversationID},
		{"long conversation", RunRequest{ConversationID: strings.Repeat("c", 129), Mode: ModeScan}, ErrInvalidConversationID},
		{"invalid mode", RunRequest{ConversationID: "conv-1", Mode: "purge"}, ErrInvalidMode},
		{"long actor", RunRequest{ConversationID: "conv-1", Mode: ModeScan, ActorID: strings.Repeat("a", 101)}, ErrInvalidActorID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Zero(t, store.FindCalls())
	assert.Empty(t, svc.History(), "rejected requests are not recorded")
}

func TestRun_ScanModeDoesNotWrite(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	svc := NewService(store, Options{})

	res, err := svc.Run(context.Background(), RunRequest{ConversationID: "conv-1", Mode: ModeScan})
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 5, Corrupted: 2}, res.Summary)
	assert.Len(t, res.Messages, 2)
	assert.Empty(t, res.AffectedIDs)
	assert.Zero(t, store.Writes())
}

func TestRun_DryRunDelete(t *testing.T) {
	store := newMemStore(t, flaggedMessages("conv-1", 23)...)
	svc := NewService(store, Options{})

	res, err := svc.Run(context.Background(), RunRequest{
		ConversationID: "conv-1",
		Mode:           ModeDelete,
		ActorID:        "ops",
		DryRun:         true,
	})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 23, res.Cleaned)
	assert.Len(t, res.AffectedIDs, 23)
	assert.Zero(t, store.Writes())
	assert.Zero(t, store.CommitCalls())
}

func TestRun_HistoryNewestFirst(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	svc := NewService(store, Options{})

	var lastID string
	for i := 0; i < 7; i++ {
		res, err := svc.Run(context.Background(), RunRequest{ConversationID: "conv-1", Mode: ModeScan, ActorID: "ops"})
		require.NoError(t, err)
		lastID = res.RunID
	}

	records := svc.History()
	require.Len(t, records, 5)
	assert.Equal(t, lastID, records[0].ID)
	assert.Equal(t, "ops", records[0].ActorID)
	assert.Equal(t, ModeScan, records[0].Mode)
	assert.EqualValues(t, 5, records[0].Scanned)
	assert.Equal(t, 2, records[0].Corrupted)
}

func TestRun_DefaultActorFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sanitizer.DefaultActor = "janitor"
	cfg.Sanitizer.BatchSize = 1

	store := &recordingStore{Store: newMemStore(t, fiveMessageConversation("conv-1")...)}
	svc := NewService(store, OptionsFromConfig(cfg))

	_, err := svc.Run(context.Background(), RunRequest{ConversationID: "conv-1", Mode: ModeDelete})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1}, store.batchSizes())
	m, _ := store.Get("m2")
	assert.Equal(t, "janitor", m.DeletedBy)
	assert.Equal(t, "janitor", svc.History()[0].ActorID)
}

func TestRun_Metrics(t *testing.T) {
	metrics := NewMetrics()
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	svc := NewService(store, Options{Metrics: metrics})

	_, err := svc.Run(context.Background(), RunRequest{ConversationID: "conv-1", Mode: ModeClean, DryRun: true})
	require.NoError(t, err)

	reg := metrics.Registry()
	assert.Equal(t, float64(2), metricValue(t, reg, "chat_sanitizer_messages_remediated_total",
		map[string]string{"strategy": "redact", "dry_run": "true"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "chat_sanitizer_run_duration_seconds",
		map[string]string{"mode": "clean"}))
}

func TestRun_RecordsDuration(t *testing.T) {
	ticks := []time.Time{testNow, testNow.Add(1500 * time.Millisecond)}
	clock := func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}

	store := newMemStore(t, newMessage("m1", "conv-1", "fine"))
	svc := NewService(store, Options{Clock: clock})

	_, err := svc.Run(context.Background(), RunRequest{ConversationID: "conv-1", Mode: ModeScan})
	require.NoError(t, err)

	rec := svc.History()[0]
	assert.Equal(t, testNow, rec.StartedAt)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration)
}
