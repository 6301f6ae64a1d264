package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/internal/document"
)

// writeTestConfig 使用 raw 提供商，不访问网络
func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transfeed.yaml")
	cfg := config.NewDefaultConfig()
	cfg.Provider = "raw"
	cfg.RequestIntervalMs = 0
	cfg.ChangeDebounceMs = 0
	cfg.LogLevel = "error"
	require.NoError(t, config.SaveConfig(cfg, path))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand("1.2.3", "abc123", "2026-01-01")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "commit abc123")
}

func TestTextCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, _, err := execute(t, "--config", cfgPath, "text", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
}

func TestTextCommand_EmojiOnly(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, errOut, err := execute(t, "--config", cfgPath, "text", "😀🎉")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "skipped")
}

func TestTranslateCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "feed.html")
	output := filepath.Join(dir, "out", "feed.html")
	require.NoError(t, os.WriteFile(input, []byte(`<html><body>
<article><div data-testid="tweetText">Bonjour le monde 👋</div></article>
<article><div data-testid="tweetText">Guten Morgen</div></article>
<article><div data-testid="tweetText">🎉</div></article>
</body></html>`), 0o644))

	out, _, err := execute(t, "--config", cfgPath, "translate", input, output, "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "2 translated, 1 skipped")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	html := string(data)
	assert.Equal(t, 2, strings.Count(html, `class="`+document.ContainerClass+`"`))
	assert.Contains(t, html, "Guten Morgen</div>")

	// 再次处理带译文容器的输出，容器不会重复
	again := filepath.Join(dir, "again.html")
	_, _, err = execute(t, "--config", cfgPath, "translate", output, again)
	require.NoError(t, err)
	data, err = os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), `class="`+document.ContainerClass+`"`))
}

func TestTranslateCommand_Stdout(t *testing.T) {
	cfgPath := writeTestConfig(t)
	input := filepath.Join(t.TempDir(), "feed.html")
	require.NoError(t, os.WriteFile(input, []byte(`<div data-testid="tweetText">Hola</div>`), 0o644))

	out, errOut, err := execute(t, "--config", cfgPath, "translate", input)
	require.NoError(t, err)
	assert.Contains(t, out, document.ContainerClass)
	assert.Contains(t, errOut, "1 translated")
}

func TestTranslateCommand_WatchNeedsOutput(t *testing.T) {
	_, _, err := execute(t, "translate", "feed.html", "--watch")
	require.Error(t, err)

	_, _, err = execute(t, "translate", "feed.html", "feed.html", "--watch")
	require.Error(t, err)
}

func TestLangCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, _, err := execute(t, "--config", cfgPath, "lang", "japanese")
	require.NoError(t, err)
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "ja", cfg.TargetLang)
	assert.Equal(t, "raw", cfg.Provider)

	_, _, err = execute(t, "--config", cfgPath, "lang", "zh_tw")
	require.NoError(t, err)
	cfg, err = config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "zh-TW", cfg.TargetLang)

	_, _, err = execute(t, "--config", cfgPath, "lang", "qqqqqqqqq")
	assert.Error(t, err)
}

func TestLangCommand_ToggleSkip(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, _, err := execute(t, "--config", cfgPath, "lang", "--skip", "en")
	require.NoError(t, err)
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, cfg.SkipLangs)

	_, _, err = execute(t, "--config", cfgPath, "lang", "--skip", "en")
	require.NoError(t, err)
	cfg, err = config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.SkipLangs)
}

func TestLangsCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, _, err := execute(t, "--config", cfgPath, "langs")
	require.NoError(t, err)
	assert.Contains(t, out, "zh-CN")
	assert.Contains(t, out, "Japanese")
	assert.Contains(t, out, "target")
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")

	_, _, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = execute(t, "--config", path, "config", "init")
	assert.Error(t, err)
	_, _, err = execute(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)

	out, _, err := execute(t, "--config", path, "-t", "fr", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "target_lang")
	assert.Contains(t, out, "fr")
}

func TestMatchLanguages(t *testing.T) {
	langs := allLanguages()

	m := matchLanguages("JA", langs)
	require.NotEmpty(t, m)
	assert.Equal(t, "ja", m[0].Code)

	m = matchLanguages("german", langs)
	require.NotEmpty(t, m)
	assert.Equal(t, "de", m[0].Code)

	assert.Empty(t, matchLanguages("  ", langs))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", maskKey(""))
	assert.Equal(t, "****", maskKey("abcd"))
	assert.Equal(t, "sk-1****wxyz", maskKey("sk-12345wxyz"))
}
