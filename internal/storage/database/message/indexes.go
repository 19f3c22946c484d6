package message

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建訊息集合索引
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(CollectionName)

	indexes := []mongo.IndexModel{
		// 1. 訊息 ID 唯一索引，所有更新都以 id 過濾
		{
			Keys:    bson.D{{Key: FieldID, Value: 1}},
			Options: options.Index().SetName("id_unique_idx").SetUnique(true),
		},
		// 2. 對話 ID + 建立時間（掃描用）
		{
			Keys: bson.D{
				{Key: FieldConversationID, Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("conversation_id_idx"),
		},
		// 3. 對話 ID + 刪除標記
		{
			Keys: bson.D{
				{Key: FieldConversationID, Value: 1},
				{Key: FieldDeleted, Value: 1},
			},
			Options: options.Index().SetName("conversation_deleted_idx"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}
