package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// PredefinedTranslation 固定译文表，命中时不调用远程翻译
//
//	source_lang = "en"
//	target_lang = "zh-CN"
//	[translations]
//	"gm" = "早上好"
type PredefinedTranslation struct {
	SourceLang   string            `toml:"source_lang"`
	TargetLang   string            `toml:"target_lang"`
	Translations map[string]string `toml:"translations"`
}

func NewPredefinedTranslation(sourceLang, targetLang string, translations map[string]string) *PredefinedTranslation {
	return &PredefinedTranslation{
		SourceLang:   sourceLang,
		TargetLang:   targetLang,
		Translations: translations,
	}
}

func LoadPredefinedTranslations(path string) (*PredefinedTranslation, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("predefined translations file not found: %s", path)
	}

	translations := &PredefinedTranslation{}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predefined translations file: %w", err)
	}
	if err := toml.Unmarshal(content, translations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal predefined translations: %w", err)
	}
	if translations.TargetLang == "" {
		return nil, fmt.Errorf("predefined translations file is missing target_lang")
	}
	translations.TargetLang = NormalizeLang(translations.TargetLang)
	translations.SourceLang = NormalizeLang(translations.SourceLang)
	return translations, nil
}

// Lookup 查找固定译文；返回译文和声明的源语言
func (p *PredefinedTranslation) Lookup(text, targetLang string) (string, string, bool) {
	if p == nil || !strings.EqualFold(p.TargetLang, targetLang) {
		return "", "", false
	}
	out, ok := p.Translations[strings.TrimSpace(text)]
	if !ok {
		return "", "", false
	}
	return out, p.SourceLang, true
}
