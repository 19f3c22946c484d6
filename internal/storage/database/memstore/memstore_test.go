package memstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chat-sanitizer/internal/storage/database/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newStore(t *testing.T, msgs ...*message.Message) *Store {
	t.Helper()
	s := New(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, s.Insert(context.Background(), msgs...))
	return s
}

func msg(id, conv, text string) *message.Message {
	return &message.Message{ID: id, ConversationID: conv, Text: text}
}

func TestFindAndCount(t *testing.T) {
	ctx := context.Background()
	s := newStore(t,
		msg("m1", "c1", "a"),
		msg("m2", "c2", "b"),
		msg("m3", "c1", "c"),
	)

	got, err := s.FindByField(ctx, message.FieldConversationID, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[1].ID)

	n, err := s.CountByField(ctx, message.FieldConversationID, "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	none, err := s.FindByField(ctx, message.FieldConversationID, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.FindByField(ctx, "no_such_field", "x")
	assert.Error(t, err)
}

func TestFindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, msg("m1", "c1", "a"))

	got, err := s.FindByField(ctx, message.FieldID, "m1")
	require.NoError(t, err)
	got[0].Text = "mutated"

	m, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "a", m.Text)
}

func TestInsertDuplicate(t *testing.T) {
	s := newStore(t, msg("m1", "c1", "a"))
	assert.Error(t, s.Insert(context.Background(), msg("m1", "c1", "b")))
	assert.Error(t, s.Insert(context.Background(), msg("", "c1", "b")))
}

func TestUpdateFields(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, msg("m1", "c1", "garbage"))

	err := s.UpdateFields(ctx, "m1", message.Fields{
		message.FieldText:             "Message unavailable",
		message.FieldIsCorrupted:      true,
		message.FieldOriginalText:     message.SetIfAbsent("garbage"),
		message.FieldCorruptionReason: "reason",
		message.FieldCleanedAt:        message.ServerTimestamp,
	})
	require.NoError(t, err)

	m, _ := s.Get("m1")
	assert.Equal(t, "Message unavailable", m.Text)
	assert.True(t, m.IsCorrupted)
	require.NotNil(t, m.OriginalText)
	assert.Equal(t, "garbage", *m.OriginalText)
	require.NotNil(t, m.CleanedAt)
	assert.Equal(t, fixedNow, *m.CleanedAt)
	assert.Equal(t, fixedNow, m.UpdatedAt)

	// 第二次更新不覆蓋 original_text
	err = s.UpdateFields(ctx, "m1", message.Fields{
		message.FieldOriginalText: message.SetIfAbsent("Message unavailable"),
	})
	require.NoError(t, err)
	m, _ = s.Get("m1")
	assert.Equal(t, "garbage", *m.OriginalText)
	assert.Equal(t, 2, s.Writes())
}

func TestUpdateFields_Errors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, msg("m1", "c1", "a"))

	err := s.UpdateFields(ctx, "missing", message.Fields{message.FieldText: "x"})
	assert.ErrorIs(t, err, message.ErrNotFound)

	err = s.UpdateFields(ctx, "m1", message.Fields{message.FieldText: 42})
	assert.Error(t, err)
	m, _ := s.Get("m1")
	assert.Equal(t, "a", m.Text, "failed update must not change the document")

	boom := errors.New("boom")
	s.FailUpdate("m1", boom)
	assert.ErrorIs(t, s.UpdateFields(ctx, "m1", message.Fields{message.FieldText: "x"}), boom)

	s.FailUpdate("m1", nil)
	assert.NoError(t, s.UpdateFields(ctx, "m1", message.Fields{message.FieldText: "x"}))
	assert.Equal(t, 1, s.Writes())
	assert.Equal(t, 4, s.UpdateCalls())
}

func TestCommitBatch_Atomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, msg("m1", "c1", "a"), msg("m2", "c1", "b"))

	err := s.CommitBatch(ctx, []message.BatchWrite{
		{ID: "m1", Fields: message.Fields{message.FieldDeleted: true}},
		{ID: "missing", Fields: message.Fields{message.FieldDeleted: true}},
	})
	assert.ErrorIs(t, err, message.ErrNotFound)

	m, _ := s.Get("m1")
	assert.False(t, m.Deleted, "partial batch must not be applied")
	assert.Equal(t, 0, s.Writes())

	err = s.CommitBatch(ctx, []message.BatchWrite{
		{ID: "m1", Fields: message.Fields{message.FieldDeleted: true, message.FieldDeletedAt: message.ServerTimestamp}},
		{ID: "m2", Fields: message.Fields{message.FieldDeleted: true, message.FieldDeletedBy: "ops"}},
	})
	require.NoError(t, err)

	m1, _ := s.Get("m1")
	m2, _ := s.Get("m2")
	assert.True(t, m1.Deleted)
	require.NotNil(t, m1.DeletedAt)
	assert.Equal(t, fixedNow, *m1.DeletedAt)
	assert.Equal(t, "ops", m2.DeletedBy)
	assert.Equal(t, 2, s.Writes())
	assert.Equal(t, 2, s.CommitCalls())
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, msg("m1", "c1", "a"))
	boom := errors.New("boom")

	s.FailFind(boom)
	_, err := s.FindByField(ctx, message.FieldConversationID, "c1")
	assert.ErrorIs(t, err, boom)
	s.FailFind(nil)

	s.FailCount(boom)
	_, err = s.CountByField(ctx, message.FieldConversationID, "c1")
	assert.ErrorIs(t, err, boom)
	s.FailCount(nil)

	s.FailCommit(2, boom)
	batch := []message.BatchWrite{{ID: "m1", Fields: message.Fields{message.FieldDeleted: true}}}
	assert.NoError(t, s.CommitBatch(ctx, batch))
	assert.ErrorIs(t, s.CommitBatch(ctx, batch), boom)
	assert.NoError(t, s.CommitBatch(ctx, batch))
	assert.Equal(t, 2, s.Writes())
}

func TestCanceledContext(t *testing.T) {
	s := newStore(t, msg("m1", "c1", "a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByField(ctx, message.FieldConversationID, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	data := `[{"id":"s1","conversation_id":"c9","text":"hello"},{"id":"s2","conversation_id":"c9","text":"kkkkkkkkkkkkkkkkkkkkk"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	s := New()
	require.NoError(t, s.LoadSeedFile(context.Background(), path))

	n, err := s.CountByField(context.Background(), message.FieldConversationID, "c9")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Error(t, s.LoadSeedFile(context.Background(), filepath.Join(t.TempDir(), "missing.json")))
}
