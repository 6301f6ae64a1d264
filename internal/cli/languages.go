package cli

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/nerdneilsfield/transfeed/internal/config"
)

// knownLanguages 可选的目标语言，DefaultLanguages 之外的常见语言
var knownLanguages = []string{
	"zh-CN", "zh-TW", "en", "ja", "ko", "ru", "fr", "de", "es", "pt",
	"it", "nl", "pl", "uk", "tr", "ar", "fa", "he", "hi", "th",
	"vi", "id", "ms", "sv", "fi", "da", "no", "cs", "el", "hu", "ro",
}

type langInfo struct {
	Code    string
	English string
	Native  string
}

func describeLang(code string) langInfo {
	info := langInfo{Code: code}
	tag, err := language.Parse(code)
	if err != nil {
		return info
	}
	info.English = display.English.Tags().Name(tag)
	info.Native = display.Self.Name(tag)
	return info
}

func (l langInfo) label() string {
	parts := []string{l.Code}
	if l.English != "" {
		parts = append(parts, l.English)
	}
	if l.Native != "" && l.Native != l.English {
		parts = append(parts, l.Native)
	}
	return strings.Join(parts, "  ")
}

// allLanguages DefaultLanguages 在前，其余按代码排序
func allLanguages() []langInfo {
	seen := make(map[string]struct{})
	var codes []string
	for _, c := range config.DefaultLanguages {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			codes = append(codes, c)
		}
	}
	var rest []string
	for _, c := range knownLanguages {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	codes = append(codes, rest...)

	out := make([]langInfo, 0, len(codes))
	for _, c := range codes {
		out = append(out, describeLang(c))
	}
	return out
}

// matchLanguages 按代码精确匹配，否则对代码和名称做模糊匹配
func matchLanguages(query string, langs []langInfo) []langInfo {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	norm := config.NormalizeLang(query)
	for _, l := range langs {
		if strings.EqualFold(l.Code, query) || l.Code == norm {
			return []langInfo{l}
		}
	}

	targets := make([]string, len(langs))
	for i, l := range langs {
		targets[i] = l.label()
	}
	ranks := fuzzy.RankFindNormalizedFold(query, targets)
	sort.Stable(ranks)

	out := make([]langInfo, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, langs[r.OriginalIndex])
	}
	return out
}
