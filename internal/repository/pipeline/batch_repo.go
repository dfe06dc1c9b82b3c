package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"lime/internal/model/pipeline"
)

// BatchRepository 批次仓库接口
type BatchRepository interface {
	Create(ctx context.Context, b *pipeline.Batch) error
	FindByID(ctx context.Context, id string) (*pipeline.Batch, error)
	UpdateStatus(ctx context.Context, id string, status pipeline.BatchStatus) error
	ListByStatus(ctx context.Context, status pipeline.BatchStatus) ([]*pipeline.Batch, error)
}

// BatchRepo 实现 BatchRepository
type BatchRepo struct {
	coll *mongo.Collection
}

// NewBatchRepo 创建批次仓库
func NewBatchRepo(db *mongo.Database) *BatchRepo {
	var b pipeline.Batch
	return &BatchRepo{coll: db.Collection(b.Collection())}
}

// Create 创建批次
func (r *BatchRepo) Create(ctx context.Context, b *pipeline.Batch) error {
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, b)
	return err
}

// FindByID 根据ID查询批次
func (r *BatchRepo) FindByID(ctx context.Context, id string) (*pipeline.Batch, error) {
	var b pipeline.Batch
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateStatus 更新批次状态（进入终态时记录完成时间）
func (r *BatchRepo) UpdateStatus(ctx context.Context, id string, status pipeline.BatchStatus) error {
	now := time.Now()
	set := bson.M{
		"status":     status,
		"updated_at": now,
	}
	if status != pipeline.BatchStatusRunning {
		set["completed_at"] = now
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	return err
}

// ListByStatus 按状态查询批次（用于启动恢复）
func (r *BatchRepo) ListByStatus(ctx context.Context, status pipeline.BatchStatus) ([]*pipeline.Batch, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var batches []*pipeline.Batch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}
