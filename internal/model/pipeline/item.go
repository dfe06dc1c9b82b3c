package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContentItem 流水线工作单元
// 一个 ContentItem 表示一条从话题到成片的完整生产记录
// 状态只由编排器通过 repository 的转移方法修改
type ContentItem struct {
	ID      string `bson:"id" json:"id"`             // 条目ID（UUID）
	BatchID string `bson:"batch_id" json:"batch_id"` // 所属批次ID
	Topic   string `bson:"topic" json:"topic"`       // 话题种子

	Stage    Stage          `bson:"stage" json:"stage"`       // 当前阶段
	Attempts map[string]int `bson:"attempts" json:"attempts"` // 各阶段已尝试次数（key 为阶段名）

	Script        *Script `bson:"script,omitempty" json:"script,omitempty"`                 // 文案阶段产物
	MediaPath     string  `bson:"media_path,omitempty" json:"media_path,omitempty"`         // 渲染阶段产物（本地路径）
	MediaDuration float64 `bson:"media_duration,omitempty" json:"media_duration,omitempty"` // 成片时长（秒）
	ArchiveURL    string  `bson:"archive_url,omitempty" json:"archive_url,omitempty"`       // 成片归档地址

	RemoteID     string `bson:"remote_id,omitempty" json:"remote_id,omitempty"`         // 发布端视频ID
	PublishedURL string `bson:"published_url,omitempty" json:"published_url,omitempty"` // 发布端访问地址

	FailureKind   string `bson:"failure_kind,omitempty" json:"failure_kind,omitempty"`     // 失败分类
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"` // 失败原因（终态 failed 必填）

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// AttemptCount 返回指定阶段的已尝试次数
func (i *ContentItem) AttemptCount(stage Stage) int {
	if i.Attempts == nil {
		return 0
	}
	return i.Attempts[string(stage)]
}

// Terminal 判断条目是否已到终态
func (i *ContentItem) Terminal() bool {
	return i.Stage.Terminal()
}

// Collection 返回集合名称
func (i *ContentItem) Collection() string { return "content_items" }

// EnsureIndexes 创建和维护索引
func (i *ContentItem) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(i.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "batch_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_batch_created"),
		},
		{
			Keys:    bson.D{{Key: "stage", Value: 1}},
			Options: options.Index().SetName("idx_stage"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// StageTransition 状态转移日志条目
// 每次阶段转移都会追加一条记录，崩溃后可据此恢复批次进度
type StageTransition struct {
	ID      string    `bson:"id" json:"id"`
	ItemID  string    `bson:"item_id" json:"item_id"`
	BatchID string    `bson:"batch_id" json:"batch_id"`
	From    Stage     `bson:"from" json:"from"`
	To      Stage     `bson:"to" json:"to"`
	Attempt int       `bson:"attempt" json:"attempt"`                   // 转移发生时该阶段的尝试次数
	Reason  string    `bson:"reason,omitempty" json:"reason,omitempty"` // 失败/取消原因
	At      time.Time `bson:"at" json:"at"`
}

// Collection 返回集合名称
func (t *StageTransition) Collection() string { return "item_transitions" }

// EnsureIndexes 创建和维护索引
func (t *StageTransition) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(t.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "item_id", Value: 1},
				{Key: "at", Value: 1},
			},
			Options: options.Index().SetName("idx_item_at"),
		},
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}},
			Options: options.Index().SetName("idx_batch"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
