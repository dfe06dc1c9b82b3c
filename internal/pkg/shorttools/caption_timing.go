package shorttools

import (
	"lime/internal/model/pipeline"
)

// CaptionTimeline 字幕时间轴计算器
// 把旁白行分配到视频时长上：每段时长与其字符数成正比，段间不重叠
type CaptionTimeline struct {
	splitter    *CaptionSplitter
	minDuration float64 // 单段最短展示时长（秒）
}

// NewCaptionTimeline 创建时间轴计算器
func NewCaptionTimeline(splitter *CaptionSplitter) *CaptionTimeline {
	return &CaptionTimeline{
		splitter:    splitter,
		minDuration: 1.0,
	}
}

// Build 为旁白行生成带时间轴的字幕条目
// duration 为视频总时长（秒）；空输入返回 nil
func (ct *CaptionTimeline) Build(lines []string, duration float64) []pipeline.CaptionCue {
	var segments []string
	for _, line := range lines {
		segments = append(segments, ct.splitter.Split(line)...)
	}
	if len(segments) == 0 || duration <= 0 {
		return nil
	}

	totalRunes := 0
	for _, seg := range segments {
		totalRunes += runeLen(seg)
	}
	if totalRunes == 0 {
		return nil
	}

	cues := make([]pipeline.CaptionCue, 0, len(segments))
	cursor := 0.0
	for _, seg := range segments {
		share := duration * float64(runeLen(seg)) / float64(totalRunes)
		if share < ct.minDuration {
			share = ct.minDuration
		}
		end := cursor + share
		if end > duration {
			end = duration
		}
		if end <= cursor {
			break
		}
		cues = append(cues, pipeline.CaptionCue{
			Text:      seg,
			StartTime: round2(cursor),
			EndTime:   round2(end),
		})
		cursor = end
	}
	return cues
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
