package sanitizer

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"chat-sanitizer/internal/corruption"
	"chat-sanitizer/internal/security/encryption"
	"chat-sanitizer/internal/storage/database/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_FlagsRepetitiveMessages(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	// 其他對話不應被讀到
	require.NoError(t, store.Insert(context.Background(), newMessage("other", "conv-2", repetitiveK)))

	flagged, err := NewScanner(store).Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, flagged, 2)

	for i, want := range []string{"m2", "m4"} {
		assert.Equal(t, want, flagged[i].ID)
		assert.Equal(t, "conv-1", flagged[i].ConversationID)
		assert.Equal(t, repetitiveK, flagged[i].Text)
		assert.Equal(t, corruption.ReasonRepetitivePattern, flagged[i].Reason)
	}
}

func TestScan_EmptyConversation(t *testing.T) {
	store := newMemStore(t)

	flagged, err := NewScanner(store).Scan(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, flagged)
	assert.Empty(t, flagged)
}

func TestScan_StoreFailure(t *testing.T) {
	store := newMemStore(t, fiveMessageConversation("conv-1")...)
	boom := errors.New("connection reset")
	store.FailFind(boom)

	flagged, err := NewScanner(store).Scan(context.Background(), "conv-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, flagged, "scan failure must not return partial results")
}

func TestScan_MissingConversationID(t *testing.T) {
	store := newMemStore(t)

	_, err := NewScanner(store).Scan(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingConversationID)
	assert.Zero(t, store.FindCalls())
}

func TestScan_RedactedMessagesAreReflagged(t *testing.T) {
	redacted := newMessage("r1", "conv-1", corruption.RedactedText)
	redacted.IsCorrupted = true
	original := repetitiveK
	redacted.OriginalText = &original

	store := newMemStore(t, redacted, newMessage("ok", "conv-1", "hello"))

	flagged, err := NewScanner(store).Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, corruption.ReasonErrorMessage, flagged[0].Reason)

	flagged, err = NewScanner(store, WithSkipRedacted(true)).Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestScan_WithRevealer(t *testing.T) {
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	enc, err := encryption.NewMessageEncryption(true, master)
	require.NoError(t, err)

	garbage, err := enc.EncryptMessage("conv-1", repetitiveK)
	require.NoError(t, err)
	normal, err := enc.EncryptMessage("conv-1", "totally fine message")
	require.NoError(t, err)

	store := newMemStore(t,
		newMessage("enc-bad", "conv-1", garbage),
		newMessage("enc-ok", "conv-1", normal),
		newMessage("broken", "conv-1", "aes256ctr:@@@"),
	)

	flagged, err := NewScanner(store, WithRevealer(enc)).Scan(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, flagged, 2)

	byID := map[string]CorruptedMessage{}
	for _, f := range flagged {
		byID[f.ID] = f
	}
	require.Contains(t, byID, "enc-bad")
	assert.Equal(t, corruption.ReasonRepetitivePattern, byID["enc-bad"].Reason)
	// 保留存儲中的原始密文
	assert.Equal(t, garbage, byID["enc-bad"].Text)

	require.Contains(t, byID, "broken")
	assert.Equal(t, corruption.ReasonErrorMessage, byID["broken"].Reason)
}

func TestScan_Metrics(t *testing.T) {
	metrics := NewMetrics()
	store := newMemStore(t, fiveMessageConversation("conv-1")...)

	_, err := NewScanner(store, WithScannerMetrics(metrics)).Scan(context.Background(), "conv-1")
	require.NoError(t, err)

	reg := metrics.Registry()
	assert.Equal(t, float64(5), metricValue(t, reg, "chat_sanitizer_messages_scanned_total", map[string]string{}))
	assert.Equal(t, float64(2), metricValue(t, reg, "chat_sanitizer_messages_corrupted_total",
		map[string]string{"reason": corruption.ReasonRepetitivePattern}))
}

var _ message.Store = (*recordingStore)(nil)
