package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"testing"

	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/sanitizer"
	"chat-sanitizer/internal/security/encryption"
	"chat-sanitizer/internal/storage/database/memstore"
	"chat-sanitizer/internal/storage/database/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestNew_MemoryDriver(t *testing.T) {
	cfg := config.Default()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Equal(t, config.DriverMemory, a.Repos.Driver)
	assert.NotNil(t, a.Metrics.Registry())

	res, err := a.Service.Run(context.Background(), sanitizer.RunRequest{ConversationID: "empty", Mode: sanitizer.ModeScan})
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestNew_EncryptionKey(t *testing.T) {
	cfg := config.Default()
	cfg.Security.Encryption.Enabled = true

	t.Setenv("MASTER_KEY", "")
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	t.Setenv("MASTER_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, a.Service)

	t.Setenv("MASTER_KEY", "not-base64!")
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

// 開發模式缺少主密鑰也不能啟動，否則正常密文全部解成佔位文字
func TestNew_DebugWithoutMasterKeyRefusesToStart(t *testing.T) {
	cfg := config.Default()
	cfg.App.Debug = true
	cfg.Security.Encryption.Enabled = true
	t.Setenv("MASTER_KEY", "")

	a, err := New(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, a)

	_, err = newMessageEncryption(context.Background())
	assert.Error(t, err)
}

func TestNew_EncryptedConversationStaysIntact(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	t.Setenv("MASTER_KEY", base64.StdEncoding.EncodeToString(key))

	writer, err := encryption.NewMessageEncryption(true, key)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.App.Debug = true
	cfg.Security.Encryption.Enabled = true

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	store, ok := a.Repos.Messages.(*memstore.Store)
	require.True(t, ok)

	healthy := []string{"hello there", "ok", "lunch?", "see you at 7", "謝謝"}
	for i, text := range healthy {
		stored, err := writer.EncryptMessage("conv-enc", text)
		require.NoError(t, err)
		require.NoError(t, store.Insert(context.Background(), &message.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "conv-enc",
			Text:           stored,
		}))
	}

	res, err := a.Service.Run(context.Background(), sanitizer.RunRequest{
		ConversationID: "conv-enc",
		Mode:           sanitizer.ModeClean,
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(healthy), res.Scanned)
	assert.Zero(t, res.Corrupted)
	assert.Zero(t, res.Cleaned)
	assert.Zero(t, store.Writes())
}

func TestClose_Nil(t *testing.T) {
	var a *App
	assert.NoError(t, a.Close(context.Background()))
}
