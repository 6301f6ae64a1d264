package pipeline

import "strings"

// ShouldDiscard 判断是否无需翻译：检测到的源语言等于目标语言或在跳过集合中。
// 源语言为空（未知）时从不跳过。skipSet 的键应为小写。
func ShouldDiscard(detectedLang, targetLang string, skipSet map[string]struct{}) bool {
	lang := strings.ToLower(strings.TrimSpace(detectedLang))
	if lang == "" {
		return false
	}
	if lang == strings.ToLower(targetLang) {
		return true
	}
	_, skip := skipSet[lang]
	return skip
}
