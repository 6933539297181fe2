package tokenizer

import (
	"strings"
	"testing"
)

var benchTexts = map[string]string{
	"short":  "MathCup 报名截止时间是什么时候？",
	"medium": "参赛队伍须在2025年3月31日前完成线上报名，每队不超过5名学生和1名指导老师。初赛采用线上笔试形式，复赛与决赛在主办方指定场地进行。作品提交格式为PDF，文件大小不超过20MB。",
	"long": strings.Repeat("RoboCup 机器人尺寸不得超过 30cm × 30cm × 40cm，重量不超过 5kg。比赛场地为 3m × 4m 的绿色地毯，"+
		"评分标准包括任务完成度、用时与技术报告质量。违规行为将视情节扣分或取消资格。", 20),
}

func benchTokenizer() *Tokenizer {
	return New(DefaultConfig(), NewLexicon(DefaultTerms()...))
}

func BenchmarkTokenize(b *testing.B) {
	tok := benchTokenizer()
	for name, text := range benchTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}

func BenchmarkKeywords(b *testing.B) {
	tok := benchTokenizer()
	for name, text := range benchTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Keywords(text, 20)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := benchTokenizer()
	text := benchTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tok.Tokenize(text)
		}
	})
}
