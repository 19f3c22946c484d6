package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore MongoDB 訊息存儲實作.
type MongoStore struct {
	collection   *mongo.Collection
	transactions bool
}

// MongoOption MongoStore 選項.
type MongoOption func(*MongoStore)

// WithTransactions 批次寫入改用多文件交易（需要 replica set）.
func WithTransactions(enabled bool) MongoOption {
	return func(s *MongoStore) {
		s.transactions = enabled
	}
}

// NewMongoStore 創建新的訊息存儲.
func NewMongoStore(db *mongo.Database, opts ...MongoOption) *MongoStore {
	s := &MongoStore{
		collection: db.Collection(CollectionName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert 寫入訊息，主要給種子資料與測試使用.
func (s *MongoStore) Insert(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(msgs))
	now := time.Now().UTC()
	for _, m := range msgs {
		if m.MongoID.IsZero() {
			m.MongoID = bson.NewObjectID()
		}
		if m.ID == "" {
			m.ID = m.MongoID.Hex()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
		docs = append(docs, m)
	}

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

// FindByField 取回所有符合條件的訊息，依建立時間排序.
func (s *MongoStore) FindByField(ctx context.Context, field string, value interface{}) ([]*Message, error) {
	filter, err := equalityFilter(field, value)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	messages := make([]*Message, 0)
	for cursor.Next(ctx) {
		var m Message
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// CountByField 計數符合條件的訊息.
func (s *MongoStore) CountByField(ctx context.Context, field string, value interface{}) (int64, error) {
	filter, err := equalityFilter(field, value)
	if err != nil {
		return 0, err
	}
	n, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count messages by %s: %w", field, err)
	}
	return n, nil
}

// UpdateFields 以 pipeline 更新單一訊息，時間戳由伺服器產生.
func (s *MongoStore) UpdateFields(ctx context.Context, id string, fields Fields) error {
	if err := validateFields(fields); err != nil {
		return err
	}
	result, err := s.collection.UpdateOne(ctx, bson.M{FieldID: id}, updatePipeline(fields))
	if err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update message %s: %w", id, ErrNotFound)
	}
	return nil
}

// CommitBatch 寫入一組更新。開啟交易時全有或全無，
// 關閉時部分寫入會回傳 *PartialCommitError.
func (s *MongoStore) CommitBatch(ctx context.Context, writes []BatchWrite) error {
	if len(writes) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		if err := validateFields(w.Fields); err != nil {
			return fmt.Errorf("message %s: %w", w.ID, err)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{FieldID: w.ID}).
			SetUpdate(updatePipeline(w.Fields)))
	}

	if !s.transactions {
		return s.commitWithoutTransaction(ctx, writes, models)
	}

	session, err := s.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.bulkWrite(ctx, models, len(writes))
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *MongoStore) bulkWrite(ctx context.Context, models []mongo.WriteModel, expected int) error {
	result, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	// 批次中任何一筆不存在都視為失敗，交易模式下會回滾
	if result.MatchedCount != int64(expected) {
		return fmt.Errorf("bulk write matched %d of %d: %w", result.MatchedCount, expected, ErrNotFound)
	}
	return nil
}

// commitWithoutTransaction 先排除不存在的訊息再有序寫入，
// 依第一個寫入錯誤的位置區分已落地與失敗的訊息
func (s *MongoStore) commitWithoutTransaction(ctx context.Context, writes []BatchWrite, models []mongo.WriteModel) error {
	ids := make([]string, 0, len(writes))
	for _, w := range writes {
		ids = append(ids, w.ID)
	}

	existing, err := s.existingIDs(ctx, ids)
	if err != nil {
		return err
	}

	present := make([]string, 0, len(ids))
	presentModels := make([]mongo.WriteModel, 0, len(models))
	var missing []string
	for i, id := range ids {
		if _, ok := existing[id]; !ok {
			missing = append(missing, id)
			continue
		}
		present = append(present, id)
		presentModels = append(presentModels, models[i])
	}

	var applied, failed []string
	cause := ErrNotFound
	if len(presentModels) > 0 {
		result, err := s.collection.BulkWrite(ctx, presentModels, options.BulkWrite().SetOrdered(true))
		var matched int64
		if result != nil {
			matched = result.MatchedCount
		}

		var known bool
		applied, failed, known = splitOrderedBulk(present, matched, err)
		if !known {
			if err != nil {
				return fmt.Errorf("bulk write: %w", err)
			}
			return fmt.Errorf("bulk write matched %d of %d: %w", matched, len(present), ErrNotFound)
		}
		if err != nil {
			cause = err
		}
	}

	failed = append(failed, missing...)
	if len(failed) == 0 {
		return nil
	}
	if len(applied) == 0 {
		return fmt.Errorf("commit batch: %w", cause)
	}
	return &PartialCommitError{Applied: applied, Failed: failed, Err: cause}
}

// existingIDs 回傳批次中存在的訊息 ID.
func (s *MongoStore) existingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{FieldID: 1, "_id": 0})
	cursor, err := s.collection.Find(ctx, bson.M{FieldID: bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find batch messages: %w", err)
	}

	var docs []struct {
		ID string `bson:"id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode batch messages: %w", err)
	}

	out := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		out[d.ID] = struct{}{}
	}
	return out, nil
}

// splitOrderedBulk 拆分有序批次寫入的結果.
// 有序寫入在第一個錯誤處停止，之前的更新都已生效；
// 無法確認時 known 為 false.
func splitOrderedBulk(ids []string, matched int64, err error) (applied, failed []string, known bool) {
	if err == nil {
		if matched == int64(len(ids)) {
			return ids, nil, true
		}
		return nil, nil, false
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return nil, nil, false
	}

	first := bwe.WriteErrors[0].Index
	for _, we := range bwe.WriteErrors[1:] {
		if we.Index < first {
			first = we.Index
		}
	}
	if first < 0 || first >= len(ids) || matched != int64(first) {
		return nil, nil, false
	}
	return ids[:first], ids[first:], true
}

// Ping 檢查存儲連線.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

// updatePipeline 把 Fields 轉成 aggregation pipeline 更新.
// 一般值以 $literal 寫入，避免字串被當成欄位路徑.
func updatePipeline(fields Fields) mongo.Pipeline {
	set := bson.D{}
	for field, v := range fields {
		set = append(set, bson.E{Key: field, Value: pipelineValue(field, v)})
	}
	if _, ok := fields[FieldUpdatedAt]; !ok {
		set = append(set, bson.E{Key: FieldUpdatedAt, Value: "$$NOW"})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func pipelineValue(field string, v interface{}) interface{} {
	switch val := v.(type) {
	case serverTimestamp:
		return "$$NOW"
	case IfAbsent:
		return bson.M{"$ifNull": bson.A{"$" + field, pipelineValue(field, val.Value)}}
	default:
		return bson.M{"$literal": val}
	}
}
