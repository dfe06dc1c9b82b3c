package shorttools

import (
	"strings"

	"github.com/go-ego/gse"
)

// CaptionSplitter 字幕文本分割器
// 将旁白文本按自然断句方式分割为适合竖屏展示的短字幕段
type CaptionSplitter struct {
	maxLength int            // 每段最大字符数（按 rune 计，默认18）
	segmenter *gse.Segmenter // gse 分词器
}

// NewCaptionSplitter 创建字幕分割器
func NewCaptionSplitter(maxLength int) *CaptionSplitter {
	if maxLength <= 0 {
		maxLength = 18
	}

	cs := &CaptionSplitter{maxLength: maxLength}

	// 分词器初始化失败时降级到按字符分割
	if segmenter, err := gse.New(); err == nil {
		cs.segmenter = &segmenter
	}
	return cs
}

// 句子级结束符（中英文）
var sentenceEndings = []rune{'。', '！', '？', '；', '…', '.', '!', '?', ';'}

// 次级断句符
var secondaryEndings = []rune{'，', '、', '：', ',', ':'}

// Split 将一行旁白分割为字幕段
func (cs *CaptionSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitByEndings(text, sentenceEndings)

	// 没有明显句子边界且偏长时，尝试次级标点
	if len(sentences) == 1 && runeLen(sentences[0]) > cs.maxLength {
		sentences = splitByEndings(sentences[0], secondaryEndings)
	}

	var segments []string
	for _, sentence := range sentences {
		if runeLen(sentence) <= cs.maxLength {
			segments = append(segments, sentence)
			continue
		}
		segments = append(segments, cs.splitLongSentence(sentence)...)
	}

	// 过滤空段
	out := segments[:0]
	for _, seg := range segments {
		if strings.TrimSpace(seg) != "" {
			out = append(out, strings.TrimSpace(seg))
		}
	}
	return out
}

// splitLongSentence 按词边界分割过长句子，避免词组被裁断
func (cs *CaptionSplitter) splitLongSentence(sentence string) []string {
	var words []string
	if cs.segmenter != nil {
		words = cs.segmenter.Cut(sentence, false)
	} else {
		for _, r := range sentence {
			words = append(words, string(r))
		}
	}

	var segments []string
	current := ""
	for _, word := range words {
		if runeLen(current)+runeLen(word) <= cs.maxLength {
			current += word
			continue
		}
		if current != "" {
			segments = append(segments, current)
		}
		current = word
		// 单词本身超长时强制按字符切
		for runeLen(current) > cs.maxLength {
			runes := []rune(current)
			segments = append(segments, string(runes[:cs.maxLength]))
			current = string(runes[cs.maxLength:])
		}
	}
	if current != "" {
		segments = append(segments, current)
	}
	return segments
}

// splitByEndings 按结束符分割，结束符保留在段尾
func splitByEndings(text string, endings []rune) []string {
	var sentences []string
	current := strings.Builder{}

	for _, r := range text {
		current.WriteRune(r)
		if containsRune(endings, r) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func containsRune(rs []rune, r rune) bool {
	for _, c := range rs {
		if c == r {
			return true
		}
	}
	return false
}

func runeLen(s string) int {
	return len([]rune(s))
}
