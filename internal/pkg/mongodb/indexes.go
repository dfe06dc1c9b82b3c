package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"lime/internal/model/pipeline"
)

// EnsureIndexes 创建所有模型的索引
// 统一入口，应用启动时调用
func EnsureIndexes(db *mongo.Database) error {
	ctx := context.Background()

	models := []Model{
		&pipeline.Batch{},
		&pipeline.ContentItem{},
		&pipeline.StageTransition{},
	}

	return EnsureAllIndexes(ctx, db, models...)
}
