package shorttools

import (
	"encoding/json"
	"regexp"
	"strings"

	"lime/internal/model/pipeline"
)

// scriptPayload 临时结构体，用于解析 LLM 返回的 JSON
// 解析校验通过后转换为 pipeline.Script，字幕时间轴由 CaptionTimeline 另行计算
type scriptPayload struct {
	Title          string   `json:"title"`
	NarrationLines []string `json:"narration_lines"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

var (
	fencePattern         = regexp.MustCompile("(?s)^\\s*```(?:json|text)?\\s*\n(.*?)\n\\s*```\\s*$")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// CleanModelOutput 清理 LLM 返回的原始内容
// 移除 markdown 代码块标记和包裹引号，截取首尾大括号之间的内容，
// 修复常见的 JSON 格式问题（尾逗号）
func CleanModelOutput(raw string) string {
	content := strings.TrimSpace(raw)

	if matches := fencePattern.FindStringSubmatch(content); len(matches) > 1 {
		content = matches[1]
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// 截取第一个 '{' 到最后一个 '}' 之间的内容
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end != -1 && end > start {
		content = content[start : end+1]
	}

	// 修复尾逗号
	content = trailingCommaPattern.ReplaceAllString(content, "$1")

	return content
}

// ExtractScript 从 LLM 原始输出中提取并校验结构化文案
// 无法解析或字段缺失返回 GenerationError（kind=malformed），
// 不会静默产出空文案
func ExtractScript(raw string) (*pipeline.Script, error) {
	content := CleanModelOutput(raw)
	if content == "" {
		return nil, &pipeline.GenerationError{
			Kind:    pipeline.GenerationMalformed,
			Message: "model returned empty content",
		}
	}

	var payload scriptPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, &pipeline.GenerationError{
			Kind:    pipeline.GenerationMalformed,
			Message: "decode script json: " + err.Error(),
		}
	}

	payload.Title = strings.TrimSpace(payload.Title)
	if payload.Title == "" {
		return nil, &pipeline.GenerationError{
			Kind:    pipeline.GenerationMalformed,
			Message: "script title is missing",
		}
	}

	lines := make([]string, 0, len(payload.NarrationLines))
	for _, line := range payload.NarrationLines {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, &pipeline.GenerationError{
			Kind:    pipeline.GenerationMalformed,
			Message: "script has no narration lines",
		}
	}

	return &pipeline.Script{
		Title:          payload.Title,
		NarrationLines: lines,
		Description:    strings.TrimSpace(payload.Description),
		Tags:           payload.Tags,
	}, nil
}
