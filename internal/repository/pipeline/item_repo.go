package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lime/internal/model/pipeline"
	"lime/internal/pkg/id"
)

// ItemRepository 条目仓库接口
// Save 同时追加状态转移日志，保证条目快照与日志一致落库
type ItemRepository interface {
	CreateMany(ctx context.Context, items []*pipeline.ContentItem) error
	FindByID(ctx context.Context, itemID string) (*pipeline.ContentItem, error)
	ListByBatch(ctx context.Context, batchID string) ([]*pipeline.ContentItem, error)
	ListNonTerminalByBatch(ctx context.Context, batchID string) ([]*pipeline.ContentItem, error)
	Save(ctx context.Context, item *pipeline.ContentItem, tr *pipeline.StageTransition) error
	Transitions(ctx context.Context, itemID string) ([]*pipeline.StageTransition, error)
}

// ItemRepo 实现 ItemRepository
type ItemRepo struct {
	items *mongo.Collection
	trans *mongo.Collection
}

// NewItemRepo 创建条目仓库
func NewItemRepo(db *mongo.Database) *ItemRepo {
	var i pipeline.ContentItem
	var t pipeline.StageTransition
	return &ItemRepo{
		items: db.Collection(i.Collection()),
		trans: db.Collection(t.Collection()),
	}
}

// CreateMany 批量创建条目
func (r *ItemRepo) CreateMany(ctx context.Context, items []*pipeline.ContentItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]interface{}, 0, len(items))
	for _, item := range items {
		item.CreatedAt = now
		item.UpdatedAt = now
		docs = append(docs, item)
	}
	_, err := r.items.InsertMany(ctx, docs)
	return err
}

// FindByID 根据ID查询条目
func (r *ItemRepo) FindByID(ctx context.Context, itemID string) (*pipeline.ContentItem, error) {
	var item pipeline.ContentItem
	if err := r.items.FindOne(ctx, bson.M{"id": itemID}).Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListByBatch 查询批次全部条目（按创建顺序）
func (r *ItemRepo) ListByBatch(ctx context.Context, batchID string) ([]*pipeline.ContentItem, error) {
	return r.list(ctx, bson.M{"batch_id": batchID})
}

// ListNonTerminalByBatch 查询批次中未到终态的条目（用于启动恢复）
func (r *ItemRepo) ListNonTerminalByBatch(ctx context.Context, batchID string) ([]*pipeline.ContentItem, error) {
	filter := bson.M{
		"batch_id": batchID,
		"stage": bson.M{"$nin": []pipeline.Stage{
			pipeline.StageDone,
			pipeline.StageFailed,
		}},
	}
	return r.list(ctx, filter)
}

func (r *ItemRepo) list(ctx context.Context, filter bson.M) ([]*pipeline.ContentItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.items.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*pipeline.ContentItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Save 保存条目快照并追加状态转移日志
// tr 可为 nil（仅更新产物字段，不发生阶段转移时）
func (r *ItemRepo) Save(ctx context.Context, item *pipeline.ContentItem, tr *pipeline.StageTransition) error {
	item.UpdatedAt = time.Now()
	if _, err := r.items.ReplaceOne(ctx, bson.M{"id": item.ID}, item); err != nil {
		return err
	}

	if tr == nil {
		return nil
	}
	if tr.ID == "" {
		tr.ID = id.New()
	}
	if tr.At.IsZero() {
		tr.At = item.UpdatedAt
	}
	_, err := r.trans.InsertOne(ctx, tr)
	return err
}

// Transitions 查询条目的状态转移历史（按时间升序）
func (r *ItemRepo) Transitions(ctx context.Context, itemID string) ([]*pipeline.StageTransition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}})
	cursor, err := r.trans.Find(ctx, bson.M{"item_id": itemID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var trs []*pipeline.StageTransition
	if err := cursor.All(ctx, &trs); err != nil {
		return nil, err
	}
	return trs, nil
}
