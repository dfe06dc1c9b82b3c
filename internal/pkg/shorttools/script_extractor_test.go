package shorttools

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"lime/internal/model/pipeline"
)

func TestExtractScript(t *testing.T) {
	Convey("ExtractScript 能从模型输出中提取结构化文案", t, func() {
		Convey("干净的 JSON 直接解析", func() {
			raw := `{"title":"三分钟看懂量子纠缠","narration_lines":["第一句","第二句"],"tags":["科普"]}`
			script, err := ExtractScript(raw)
			So(err, ShouldBeNil)
			So(script.Title, ShouldEqual, "三分钟看懂量子纠缠")
			So(script.NarrationLines, ShouldResemble, []string{"第一句", "第二句"})
			So(script.Tags, ShouldResemble, []string{"科普"})
		})

		Convey("markdown 代码块包裹的 JSON 能被提取", func() {
			raw := "```json\n{\"title\":\"t\",\"narration_lines\":[\"a\"]}\n```"
			script, err := ExtractScript(raw)
			So(err, ShouldBeNil)
			So(script.Title, ShouldEqual, "t")
		})

		Convey("JSON 前后有多余说明文字时截取大括号之间的内容", func() {
			raw := "Here is the script you asked for:\n{\"title\":\"t\",\"narration_lines\":[\"a\"]}\nHope it helps!"
			script, err := ExtractScript(raw)
			So(err, ShouldBeNil)
			So(script.Title, ShouldEqual, "t")
		})

		Convey("尾逗号被修复", func() {
			raw := `{"title":"t","narration_lines":["a","b",],}`
			script, err := ExtractScript(raw)
			So(err, ShouldBeNil)
			So(len(script.NarrationLines), ShouldEqual, 2)
		})

		Convey("空内容返回 malformed 错误", func() {
			_, err := ExtractScript("   ")
			var ge *pipeline.GenerationError
			So(errors.As(err, &ge), ShouldBeTrue)
			So(ge.Kind, ShouldEqual, pipeline.GenerationMalformed)
		})

		Convey("非 JSON 内容返回 malformed 错误", func() {
			_, err := ExtractScript("I cannot help with that.")
			var ge *pipeline.GenerationError
			So(errors.As(err, &ge), ShouldBeTrue)
			So(ge.Kind, ShouldEqual, pipeline.GenerationMalformed)
		})

		Convey("缺少标题返回 malformed 错误", func() {
			_, err := ExtractScript(`{"title":"","narration_lines":["a"]}`)
			var ge *pipeline.GenerationError
			So(errors.As(err, &ge), ShouldBeTrue)
		})

		Convey("旁白全为空白返回 malformed 错误（不静默产出空文案）", func() {
			_, err := ExtractScript(`{"title":"t","narration_lines":["  ",""]}`)
			var ge *pipeline.GenerationError
			So(errors.As(err, &ge), ShouldBeTrue)
			So(ge.Kind, ShouldEqual, pipeline.GenerationMalformed)
		})
	})
}

func TestCleanModelOutput(t *testing.T) {
	Convey("CleanModelOutput 清理模型原始输出", t, func() {
		Convey("移除围栏标记", func() {
			So(CleanModelOutput("```json\n{\"a\":1}\n```"), ShouldEqual, `{"a":1}`)
		})

		Convey("无大括号时返回清理后的原文", func() {
			So(CleanModelOutput("  plain text  "), ShouldEqual, "plain text")
		})
	})
}
