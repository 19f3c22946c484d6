package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/storage/database/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestNewRepositories_Memory(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[
		{"id": "m1", "conversation_id": "conv-1", "text": "hello"},
		{"id": "m2", "conversation_id": "conv-1", "text": "kkkkkkkkkkkkkkkkkkkkk"}
	]`), 0o600))

	cfg := config.Default()
	cfg.Database.Memory.SeedFile = seed

	repos, err := NewRepositories(context.Background(), cfg)
	require.NoError(t, err)
	defer repos.Close(context.Background())

	assert.Equal(t, config.DriverMemory, repos.Driver)
	assert.NoError(t, repos.Ping(context.Background()))

	n, err := repos.Messages.CountByField(context.Background(), message.FieldConversationID, "conv-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestNewRepositories_Errors(t *testing.T) {
	_, err := NewRepositories(context.Background(), nil)
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	_, err = NewRepositories(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported database driver")

	cfg = config.Default()
	cfg.Database.Memory.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = NewRepositories(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRepositories_NilPing(t *testing.T) {
	var repos *Repositories
	assert.Error(t, repos.Ping(context.Background()))
	assert.NoError(t, repos.Close(context.Background()))
}
