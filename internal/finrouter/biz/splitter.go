package biz

import (
	"strings"
	"unicode/utf8"
)

// 默认分块参数。
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter 递归字符切分器。
// 依次尝试分隔符，超长片段用下一级分隔符继续切分，相邻分块保留 overlap 个字符的重叠。
// 长度按 Unicode 字符计。分隔符保留在其后片段的开头。
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter 创建切分器，非法参数回退到默认值。
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Splitter{size: size, overlap: overlap, separators: defaultSeparators}
}

// Split 切分文本，返回非空分块。
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var (
		chunks []string
		good   []string
	)
	for _, piece := range splitKeep(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge 将小片段合并为不超过 size 的分块，分隔符已在片段内，直接拼接。
func (s *Splitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep 按分隔符切分，分隔符附在后一段开头；空分隔符按字符切分。
func splitKeep(text, separator string) []string {
	if separator == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTrimmed(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
