package shorttools

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCaptionSplitter_Split(t *testing.T) {
	Convey("CaptionSplitter.Split 能自然分割旁白文本", t, func() {
		splitter := NewCaptionSplitter(12)

		Convey("空文本返回 nil", func() {
			So(splitter.Split(""), ShouldBeNil)
			So(splitter.Split("   "), ShouldBeNil)
		})

		Convey("短文本不分割", func() {
			result := splitter.Split("今天讲个小知识。")
			So(len(result), ShouldEqual, 1)
		})

		Convey("按句子结束符分割", func() {
			result := splitter.Split("第一句话。第二句话！第三句话？")
			So(len(result), ShouldEqual, 3)
			So(result[0], ShouldEqual, "第一句话。")
			So(result[1], ShouldEqual, "第二句话！")
		})

		Convey("长单句按次级标点分割", func() {
			result := splitter.Split("这是一个很长很长的句子，它没有句号，但是有很多逗号")
			So(len(result), ShouldBeGreaterThanOrEqualTo, 2)
		})

		Convey("每段不超过最大长度", func() {
			result := splitter.Split("这是一段完全没有任何标点符号的超长文本内容需要被强制切分成多段展示")
			So(len(result), ShouldBeGreaterThan, 1)
			for _, seg := range result {
				So(runeLen(seg), ShouldBeLessThanOrEqualTo, 12)
			}
		})

		Convey("英文句子也能分割", func() {
			result := splitter.Split("First one. Second one!")
			So(len(result), ShouldEqual, 2)
		})
	})
}

func TestNewCaptionSplitter(t *testing.T) {
	Convey("NewCaptionSplitter 初始化分词器", t, func() {
		splitter := NewCaptionSplitter(10)
		So(splitter, ShouldNotBeNil)
		So(splitter.maxLength, ShouldEqual, 10)

		Convey("词边界分割正常工作", func() {
			result := splitter.Split("人工智能正在改变短视频内容的生产方式和传播效率")
			So(len(result), ShouldBeGreaterThan, 1)
			for _, seg := range result {
				So(runeLen(seg), ShouldBeLessThanOrEqualTo, 10)
			}
		})

		Convey("非法长度回退到默认值", func() {
			So(NewCaptionSplitter(0).maxLength, ShouldEqual, 18)
		})
	})
}

func TestCaptionTimeline_Build(t *testing.T) {
	Convey("CaptionTimeline.Build 生成不重叠的时间轴", t, func() {
		tl := NewCaptionTimeline(NewCaptionSplitter(12))

		Convey("空输入返回 nil", func() {
			So(tl.Build(nil, 15), ShouldBeNil)
			So(tl.Build([]string{"你好。"}, 0), ShouldBeNil)
		})

		Convey("时间轴单调递增且不超过总时长", func() {
			cues := tl.Build([]string{"第一句话。第二句话。", "第三句话。"}, 15)
			So(len(cues), ShouldEqual, 3)

			prev := 0.0
			for _, cue := range cues {
				So(cue.StartTime, ShouldBeGreaterThanOrEqualTo, prev)
				So(cue.EndTime, ShouldBeGreaterThan, cue.StartTime)
				So(cue.EndTime, ShouldBeLessThanOrEqualTo, 15)
				prev = cue.EndTime
			}
		})

		Convey("较长的段占据较长的时间", func() {
			cues := tl.Build([]string{"短。很长很长很长的一句话。"}, 15)
			So(len(cues), ShouldEqual, 2)
			short := cues[0].EndTime - cues[0].StartTime
			long := cues[1].EndTime - cues[1].StartTime
			So(long, ShouldBeGreaterThan, short)
		})
	})
}
