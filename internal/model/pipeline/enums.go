package pipeline

// Stage 流水线阶段
// 条目在任意时刻只处于一个阶段；除有界重试回到原阶段外，阶段只向前推进
type Stage string

const (
	StageQueued    Stage = "queued"    // 已入队，等待文案生成
	StageScripting Stage = "scripting" // 文案生成中
	StageRendering Stage = "rendering" // 视频渲染中
	StageUploading Stage = "uploading" // 发布上传中
	StageDone      Stage = "done"      // 终态：发布成功
	StageFailed    Stage = "failed"    // 终态：失败（携带失败原因）
)

// Terminal 判断是否为终态
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Next 返回下一个阶段（终态返回自身）
func (s Stage) Next() Stage {
	switch s {
	case StageQueued:
		return StageScripting
	case StageScripting:
		return StageRendering
	case StageRendering:
		return StageUploading
	case StageUploading:
		return StageDone
	default:
		return s
	}
}

// BatchStatus 批次状态
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// Progress 批次聚合进度
type Progress struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
}

// Total 批次条目总数
func (p Progress) Total() int {
	return p.Queued + p.InFlight + p.Done + p.Failed
}

// Complete 批次是否全部终态
func (p Progress) Complete() bool {
	return p.Queued == 0 && p.InFlight == 0
}
