// Package extract 从帖子的 HTML 中提取待翻译的规范文本。
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"
	"golang.org/x/net/html"

	"github.com/nerdneilsfield/transfeed/internal/emoji"
)

// StripSelector 不属于正文的交互元素：链接、按钮和卡片预览
const StripSelector = `a, button, [data-testid="card.wrapper"]`

var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "ul": true, "ol": true,
	"blockquote": true, "section": true, "article": true, "header": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true,
}

var (
	blockStyle     = regexp2.MustCompile(`display\s*:\s*(block|flex)\b`, regexp2.IgnoreCase)
	trailingBlanks = regexp2.MustCompile(`(\S)[ \t]+\n`, 0)
	spaceRuns      = regexp2.MustCompile(`[ \t]{2,}`, 0)
	blankLines     = regexp2.MustCompile(`\n{3,}`, 0)
)

// Text 提取选区第一个元素的规范文本，不修改原文档
func Text(sel *goquery.Selection) (string, error) {
	if sel.Length() == 0 {
		return "", nil
	}
	clone := sel.First().Clone()

	clone.Find(StripSelector).Each(func(_ int, s *goquery.Selection) {
		if !containsEmoji(s) {
			s.Remove()
		}
	})

	var b strings.Builder
	for _, n := range clone.Nodes {
		collect(n, &b)
	}
	return Normalize(b.String())
}

// FromHTML 解析 HTML 片段后提取文本，多个顶层节点合为一个条目
func FromHTML(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}
	return Text(doc.Find("body"))
}

// Normalize 统一空白：NBSP 转空格，去掉首尾空白和零宽空格，
// 删除行尾空白，合并连续空格，最多保留一个空行
func Normalize(text string) (string, error) {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.Trim(text, " \t\r\n\v\f\u200b")

	var err error
	if text, err = trailingBlanks.Replace(text, "$1\n", -1, -1); err != nil {
		return "", err
	}
	if text, err = spaceRuns.Replace(text, " ", -1, -1); err != nil {
		return "", err
	}
	if text, err = blankLines.Replace(text, "\n\n", -1, -1); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func collect(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c, b)
		}
		return
	}

	tag := strings.ToLower(n.Data)
	switch tag {
	case "br":
		b.WriteString("\n")
		return
	case "img":
		// emoji 常以图片形式出现，alt 为字符本身
		if alt := attr(n, "alt"); hasEmoji(alt) {
			b.WriteString(alt)
		}
		return
	case "script", "style", "svg":
		return
	}

	block := isBlock(n, tag)
	if block {
		breakLine(b)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, b)
	}
	if block {
		b.WriteString("\n")
	}
}

// breakLine 块级元素另起一行
func breakLine(b *strings.Builder) {
	if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
}

func isBlock(n *html.Node, tag string) bool {
	if blockTags[tag] {
		return true
	}
	if tag != "span" {
		return false
	}
	ok, err := blockStyle.MatchString(attr(n, "style"))
	return err == nil && ok
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func containsEmoji(s *goquery.Selection) bool {
	if hasEmoji(s.Text()) {
		return true
	}
	found := false
	s.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		alt, _ := img.Attr("alt")
		found = hasEmoji(alt)
		return !found
	})
	return found
}

func hasEmoji(text string) bool {
	for _, seg := range emoji.Split(text) {
		if seg.IsEmoji() {
			return true
		}
	}
	return false
}
