package pipeline

// Script 结构化文案
// 由文案生成模型产出，经过提取和校验后的最终结构
type Script struct {
	Title          string       `bson:"title" json:"title"`                     // 视频标题
	NarrationLines []string     `bson:"narration_lines" json:"narration_lines"` // 旁白文本（有序）
	CaptionCues    []CaptionCue `bson:"caption_cues" json:"caption_cues"`       // 字幕条目（有序）
	Description    string       `bson:"description,omitempty" json:"description,omitempty"`
	Tags           []string     `bson:"tags,omitempty" json:"tags,omitempty"`
}

// CaptionCue 单条字幕及其时间轴
type CaptionCue struct {
	Text      string  `bson:"text" json:"text"`
	StartTime float64 `bson:"start_time" json:"start_time"` // 秒
	EndTime   float64 `bson:"end_time" json:"end_time"`     // 秒
}

// Empty 判断文案是否为空（无标题或无旁白）
func (s *Script) Empty() bool {
	return s == nil || s.Title == "" || len(s.NarrationLines) == 0
}
