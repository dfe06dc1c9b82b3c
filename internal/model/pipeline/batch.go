package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Batch 批次实体
// 一个 Batch 表示一次性提交的一组话题；全部条目到达终态后批次完成
type Batch struct {
	ID          string      `bson:"id" json:"id"`     // 批次ID（UUID）
	Status      BatchStatus `bson:"status" json:"status"`
	Total       int         `bson:"total" json:"total"` // 条目总数
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time  `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Collection 返回集合名称
func (b *Batch) Collection() string { return "batches" }

// EnsureIndexes 创建和维护索引
func (b *Batch) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(b.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_status"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
