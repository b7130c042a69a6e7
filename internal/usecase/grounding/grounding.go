// Package grounding builds the bounded fact context handed to the
// generation model and sanitizes its output against an allow-list, so a
// generated answer can never introduce a course the retriever did not
// return.
package grounding

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/domain/search"
	"github.com/classnav/classnav/internal/lexicon"
	"github.com/classnav/classnav/internal/metrics"
)

const systemPrompt = `你是一個專業的課程推薦助手。基於提供的課程資訊，為用戶推薦最適合的課程。

重要原則：
1. 只推薦「課程資訊」中列出的課程，絕對不能虛構或推薦不存在的課程
2. 根據用戶需求和課程匹配度進行排序推薦
3. 提供具體且實用的推薦理由
4. 用繁體中文回答

請以 JSON 物件回覆，不要加任何其他文字，格式為：
{"intro": "開場說明", "recommendations": [{"title": "課程名稱", "reason": "推薦理由"}], "clarify_question": "需要時提出的釐清問題"}
recommendations 中的 title 必須與課程資訊中的課程名稱完全一致。
如果沒有完全符合的課程，recommendations 可以留空，並在 clarify_question 提出一個問題。`

// Context is the grounded input for one generation call: the prompts plus
// the allow-list the output will be checked against.
type Context struct {
	SystemPrompt  string
	UserPrompt    string
	AllowedTitles []string
}

// Recommendation is one sanitized recommended course.
type Recommendation struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Answer is the sanitized generation output.
type Answer struct {
	Intro           string           `json:"intro"`
	Recommendations []Recommendation `json:"recommendations"`
	ClarifyQuestion string           `json:"clarify_question,omitempty"`
}

// Formatter assembles grounded prompts and filters generated output.
type Formatter struct {
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// New creates a formatter. The lexicon supplies the denylist of speculative
// terms stripped from generated text.
func New(lex *lexicon.Lexicon, logger *zap.Logger) *Formatter {
	return &Formatter{lex: lex, logger: logger}
}

// Build produces the generation context from the retrieved results. Every
// fact in the user prompt comes from the result set, nothing else.
func (f *Formatter) Build(query string, results []search.Result) Context {
	var b strings.Builder
	fmt.Fprintf(&b, "用戶查詢: %s\n\n", query)
	b.WriteString("課程資訊:\n")

	titles := make([]string, 0, len(results))
	for i, res := range results {
		titles = append(titles, res.Title)
		fmt.Fprintf(&b, "\n%d. 課程名稱: %s\n", i+1, res.Title)
		fmt.Fprintf(&b, "   類別: %s\n", res.Category)
		fmt.Fprintf(&b, "   介紹: %s\n", res.Description)
		fmt.Fprintf(&b, "   相似度: %.3f\n", res.Score)

		var details []string
		for _, d := range []struct{ label, value string }{
			{"授課教師", res.Meta.Teacher},
			{"年齡限制", res.Meta.AgeLimit},
			{"上課時間", res.Meta.Time},
			{"課程費用", res.Meta.Fee},
			{"體驗費用", res.Meta.TrialFee},
		} {
			if d.value != "" {
				details = append(details, d.label+": "+d.value)
			}
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, "   詳細資訊: %s\n", strings.Join(details, ", "))
		}
	}

	b.WriteString("\n請根據以上課程資訊，為用戶提供最適合的課程推薦。")

	return Context{
		SystemPrompt:  systemPrompt,
		UserPrompt:    b.String(),
		AllowedTitles: titles,
	}
}

// Sanitize checks a generated reply against the retrieved results. Structured
// JSON replies have their recommendations filtered to allow-listed titles;
// free-text replies are kept as the intro with the retrieved records
// presented directly. Denylisted terms are stripped everywhere.
func (f *Formatter) Sanitize(raw string, results []search.Result) Answer {
	allowed := make(map[string]bool, len(results))
	for _, res := range results {
		allowed[res.Title] = true
	}

	answer, ok := parseStructured(raw)
	if !ok {
		// Free text. The text itself cannot be verified item by item, so
		// present the retrieved records as the recommendation list.
		f.logger.Debug("generation reply not structured, using as intro")
		return Answer{
			Intro:           f.stripDenied(strings.TrimSpace(raw)),
			Recommendations: f.presentDirectly(results),
		}
	}

	kept := answer.Recommendations[:0]
	for _, rec := range answer.Recommendations {
		title := strings.TrimSpace(rec.Title)
		if !allowed[title] {
			metrics.HallucinationsDropped.Inc()
			f.logger.Warn("dropped hallucinated recommendation", zap.String("title", title))
			continue
		}
		rec.Title = title
		rec.Reason = f.stripDenied(rec.Reason)
		kept = append(kept, rec)
	}
	answer.Recommendations = kept
	answer.Intro = f.stripDenied(answer.Intro)
	answer.ClarifyQuestion = f.stripDenied(answer.ClarifyQuestion)

	if len(answer.Recommendations) == 0 && len(results) > 0 {
		answer.Recommendations = f.presentDirectly(results)
		if answer.Intro == "" {
			answer.Intro = "以下是與您需求最接近的課程："
		}
	}

	return answer
}

// presentDirectly turns the top retrieved records into recommendations with
// a generic rationale, bypassing generation entirely.
func (f *Formatter) presentDirectly(results []search.Result) []Recommendation {
	recs := make([]Recommendation, 0, len(results))
	for _, res := range results {
		recs = append(recs, Recommendation{
			Title:  res.Title,
			Reason: "符合您的搜尋需求",
		})
	}
	return recs
}

// stripDenied removes denylisted speculative terms by literal substring
// deletion.
func (f *Formatter) stripDenied(text string) string {
	for _, term := range f.lex.Denylist() {
		text = strings.ReplaceAll(text, term, "")
	}
	return text
}
