package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"lime/internal/ai/component"
	"lime/internal/config"
)

// ScriptChain 文案生成链
// 工作流: 话题 -> Prompt模板 -> ChatModel -> 原始 JSON 文案
// 输出的提取与校验在 shorttools 中完成，这里只负责模型调用
type ScriptChain struct {
	chatModel model.BaseChatModel
}

// ScriptRequest 文案生成请求
type ScriptRequest struct {
	Topic    string  // 话题种子
	Duration float64 // 目标视频时长（秒），用于控制旁白篇幅
}

// ScriptResponse 文案生成响应
type ScriptResponse struct {
	Content      string // 模型原始输出（待提取的 JSON）
	PromptTokens int    // 输入 token 数
	OutputTokens int    // 输出 token 数
}

// NewScriptChain 创建文案生成链
func NewScriptChain(ctx context.Context, cfg *config.AIConfig) (*ScriptChain, error) {
	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &ScriptChain{
		chatModel: chatModel,
	}, nil
}

const scriptSystemPrompt = `You are a short-video scriptwriter. Given a topic, you write a
script for a vertical short video. Respond with a single valid JSON object and nothing else:
{
  "title": "catchy video title, under 60 characters",
  "narration_lines": ["3 to 6 short narration lines, each one spoken sentence"],
  "description": "one-paragraph video description",
  "tags": ["3 to 8 short tags"]
}
Do NOT use markdown formatting like ` + "```json" + ` around the JSON object.`

// Run 执行文案生成
func (c *ScriptChain) Run(ctx context.Context, req *ScriptRequest) (*ScriptResponse, error) {
	messages := []*schema.Message{
		schema.SystemMessage(scriptSystemPrompt),
		schema.UserMessage(buildScriptPrompt(req.Topic, req.Duration)),
	}

	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	var promptTokens, outputTokens int
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		promptTokens = resp.ResponseMeta.Usage.PromptTokens
		outputTokens = resp.ResponseMeta.Usage.CompletionTokens
	}

	return &ScriptResponse{
		Content:      resp.Content,
		PromptTokens: promptTokens,
		OutputTokens: outputTokens,
	}, nil
}

// buildScriptPrompt 构建用户提示词
func buildScriptPrompt(topic string, duration float64) string {
	if duration <= 0 {
		duration = 15
	}
	return fmt.Sprintf("Topic: %s\n\nThe video is about %.0f seconds long; keep the total narration short enough to fit.", topic, duration)
}
