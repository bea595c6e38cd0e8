// Package processor turns knowledge files into question/answer entries.
//
// A knowledge file looks like:
//
//	## 户籍办理
//	### 关键词: 身份证, 户口
//	#### 问题 1: 如何办理身份证？
//	**回答:**
//	请携带户口本前往派出所办理。
//
// Content before the first "## " heading is ignored.
package processor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xhad/askgov/internal/models"
)

type ProcessorConfig struct {
	// KeywordSeparators are the characters that split a keyword line.
	KeywordSeparators string
	// MaxAnswerLength truncates answers, in runes. Zero keeps them whole.
	MaxAnswerLength int
}

type Processor struct {
	config ProcessorConfig
}

var (
	questionPattern = regexp.MustCompile(`^####\s+问题\s*\d+\s*[:：]\s*`)
	keywordPattern  = regexp.MustCompile(`^###\s*关键词\s*[:：]`)
	answerPattern   = regexp.MustCompile(`^\*\*回答\s*[:：]\s*\*\*`)
)

func NewWithConfig(config ProcessorConfig) Processor {
	if config.KeywordSeparators == "" {
		config.KeywordSeparators = ",，、"
	}
	if config.MaxAnswerLength < 0 {
		config.MaxAnswerLength = 0
	}

	return Processor{
		config: config,
	}
}

// ParseMarkdown parses text with the default configuration.
func ParseMarkdown(text string) []models.KnowledgeEntry {
	p := NewWithConfig(ProcessorConfig{})
	return p.Parse(text)
}

// parser holds the state of one pass over a file.
type parser struct {
	p         *Processor
	entries   []models.KnowledgeEntry
	keywords  []string
	question  string
	answer    []string
	inSection bool
	collect   bool
}

// Parse extracts every complete entry from text. An entry needs both a
// question and a non-empty answer; incomplete ones are dropped.
func (p *Processor) Parse(text string) []models.KnowledgeEntry {
	st := &parser{p: p}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, raw := range strings.Split(text, "\n") {
		if strings.HasPrefix(raw, "## ") {
			st.flush()
			st.keywords = nil
			st.question = ""
			st.collect = false
			st.inSection = true
			continue
		}
		if !st.inSection {
			continue
		}
		st.line(cleanText(raw))
	}
	st.flush()

	return st.entries
}

func (st *parser) line(line string) {
	switch {
	case keywordPattern.MatchString(line):
		st.flush()
		st.collect = false
		st.keywords = st.p.splitKeywords(keywordPattern.ReplaceAllString(line, ""))

	case questionPattern.MatchString(line):
		st.flush()
		st.collect = false
		st.question = strings.TrimSpace(questionPattern.ReplaceAllString(line, ""))

	case answerPattern.MatchString(line):
		st.collect = true
		if rest := strings.TrimSpace(answerPattern.ReplaceAllString(line, "")); rest != "" {
			st.answer = append(st.answer, rest)
		}

	case st.collect:
		if strings.HasPrefix(line, "###") {
			st.flush()
			st.collect = false
			return
		}
		if line != "" {
			st.answer = append(st.answer, line)
		}
	}
}

// flush emits the pending entry, if complete, and clears the answer.
func (st *parser) flush() {
	answer := strings.TrimSpace(strings.Join(st.answer, "\n"))
	st.answer = nil

	if st.question == "" || answer == "" {
		return
	}

	if limit := st.p.config.MaxAnswerLength; limit > 0 && utf8.RuneCountInString(answer) > limit {
		answer = string([]rune(answer)[:limit])
	}

	keywords := make([]string, len(st.keywords))
	copy(keywords, st.keywords)

	st.entries = append(st.entries, models.KnowledgeEntry{
		Keywords: keywords,
		Question: st.question,
		Answer:   answer,
	})
}

func (p *Processor) splitKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(p.config.KeywordSeparators, r)
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if k := strings.TrimSpace(f); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func cleanText(text string) string {
	return strings.TrimSpace(sanitizeUTF8(text))
}

// sanitizeUTF8 drops invalid bytes so stored content is always valid text.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
