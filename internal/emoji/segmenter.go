// Package emoji 把帖子文本切成文本段和 emoji 段，emoji 段原样保留不送翻译。
package emoji

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// Kind 段类型
type Kind int

const (
	KindText Kind = iota
	KindEmoji
)

func (k Kind) String() string {
	if k == KindEmoji {
		return "emoji"
	}
	return "text"
}

// Segment 文本中连续的一段纯文本或 emoji
type Segment struct {
	Kind    Kind
	Content string
}

// IsEmoji 是否为 emoji 段
func (s Segment) IsEmoji() bool {
	return s.Kind == KindEmoji
}

// Segmenter 生成翻译计划
type Segmenter struct {
	MinLength int // 同一文本段拆出的相邻片段短于该长度时合并
	MaxLength int // 文本段超过该长度时按句拆分
}

// New 创建分段器，长度以 UTF-16 码元计
func New(minLength, maxLength int) *Segmenter {
	return &Segmenter{MinLength: minLength, MaxLength: maxLength}
}

// Split 无损切分：每个 emoji 属性字符的最大连续区间为一个 emoji 段，
// 其余为文本段。所有段的 Content 依次拼接等于原文。
func Split(text string) []Segment {
	var segs []Segment
	start := 0
	cur := KindText

	for i, r := range text {
		kind := KindText
		if isEmojiAt(text, i, r) {
			kind = KindEmoji
		}
		if i == 0 {
			cur = kind
			continue
		}
		if kind != cur {
			segs = append(segs, Segment{Kind: cur, Content: text[start:i]})
			start = i
			cur = kind
		}
	}
	if start < len(text) {
		segs = append(segs, Segment{Kind: cur, Content: text[start:]})
	}
	return segs
}

func isEmojiAt(text string, i int, r rune) bool {
	if IsPictographic(r) || IsComponent(r) {
		return true
	}
	if !isKeycapBase(r) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(text[i+utf8.RuneLen(r):])
	return next == 0xFE0F || next == 0x20E3
}

// Segment 返回翻译计划：emoji 段原样保留；文本段去掉首尾空白，
// 空段省略，超长段按句拆分后合并过短的相邻片段。合并不跨越 emoji 段。
func (s *Segmenter) Segment(text string) []Segment {
	var plan []Segment
	for _, seg := range Split(text) {
		if seg.IsEmoji() {
			plan = append(plan, seg)
			continue
		}

		trimmed := strings.TrimSpace(seg.Content)
		if trimmed == "" {
			continue
		}
		if s.MaxLength <= 0 || Length(trimmed) <= s.MaxLength {
			plan = append(plan, Segment{Kind: KindText, Content: trimmed})
			continue
		}
		for _, piece := range mergeShort(splitLong(trimmed, s.MaxLength), s.MinLength, s.MaxLength) {
			plan = append(plan, Segment{Kind: KindText, Content: piece})
		}
	}
	return plan
}

// Reassemble 用单个空格按原顺序连接各段，空段跳过
func Reassemble(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// TextCount 计划中需要翻译的文本段数量
func TextCount(plan []Segment) int {
	n := 0
	for _, seg := range plan {
		if !seg.IsEmoji() {
			n++
		}
	}
	return n
}

// Length 字符串的 UTF-16 码元数
func Length(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// splitLong 在句末或换行处切开，仍超长的句子按码元硬切
func splitLong(text string, maxLength int) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		end := i + utf8.RuneLen(r)
		if isSentenceEnd(text, end, r) {
			sentences = append(sentences, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	var pieces []string
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if Length(sentence) <= maxLength {
			pieces = append(pieces, sentence)
			continue
		}
		pieces = append(pieces, hardSplit(sentence, maxLength)...)
	}
	return pieces
}

func isSentenceEnd(text string, next int, r rune) bool {
	switch r {
	case '\n', '。', '！', '？', '…':
		return true
	case '.', '!', '?':
		if next >= len(text) {
			return true
		}
		after, _ := utf8.DecodeRuneInString(text[next:])
		return unicode.IsSpace(after)
	}
	return false
}

func hardSplit(text string, maxLength int) []string {
	var out []string
	start, n := 0, 0
	for i, r := range text {
		l := Length(string(r))
		if n+l > maxLength && i > start {
			out = append(out, text[start:i])
			start, n = i, 0
		}
		n += l
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// mergeShort 相邻片段任一短于 minLength 且合并后不超过 maxLength 时用单个空格合并
func mergeShort(pieces []string, minLength, maxLength int) []string {
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if n := len(out); n > 0 {
			prev := out[n-1]
			lp, lc := Length(prev), Length(p)
			if (lp < minLength || lc < minLength) && lp+1+lc <= maxLength {
				out[n-1] = prev + " " + p
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
