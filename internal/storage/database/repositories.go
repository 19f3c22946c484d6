package database

import (
	"context"
	"fmt"

	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/driver"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/storage/database/memstore"
	"chat-sanitizer/internal/storage/database/message"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories 倉儲集合.
type Repositories struct {
	Driver   string
	Messages message.Store

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// NewRepositories 依 database.driver 創建倉儲集合.
func NewRepositories(ctx context.Context, cfg *config.Config) (*Repositories, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置未載入")
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		return newMemoryRepositories(ctx, cfg.Database.Memory)
	case config.DriverMongo:
		client, err := driver.ConnectMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, err
		}
		return newMongoRepositories(ctx, client, cfg.Database.Mongo)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func newMemoryRepositories(ctx context.Context, cfg config.MemoryConfig) (*Repositories, error) {
	store := memstore.New()
	if cfg.SeedFile != "" {
		if err := store.LoadSeedFile(ctx, cfg.SeedFile); err != nil {
			return nil, err
		}
		logger.LogInfof("記憶體存儲已載入種子資料: %s", cfg.SeedFile)
	}

	return &Repositories{
		Driver:   config.DriverMemory,
		Messages: store,
		ping:     store.Ping,
		close:    func(context.Context) error { return nil },
	}, nil
}

func newMongoRepositories(ctx context.Context, client *mongo.Client, cfg config.MongoConfig) (*Repositories, error) {
	db := client.Database(cfg.Database)

	if cfg.CreateIndexes {
		// 索引失敗不中斷啟動
		if err := message.CreateIndexes(ctx, db); err != nil {
			logger.Warning(ctx, "建立訊息索引失敗: "+err.Error())
		}
	}

	store := message.NewMongoStore(db, message.WithTransactions(cfg.Transactions))
	return &Repositories{
		Driver:   config.DriverMongo,
		Messages: store,
		ping:     store.Ping,
		close: func(ctx context.Context) error {
			return driver.CloseMongo(ctx, client)
		},
	}, nil
}

// Ping 檢查存儲連線.
func (r *Repositories) Ping(ctx context.Context) error {
	if r == nil || r.ping == nil {
		return fmt.Errorf("database connection not available")
	}
	return r.ping(ctx)
}

// Close 釋放存儲連線.
func (r *Repositories) Close(ctx context.Context) error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close(ctx)
}
