package document

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/pipeline"
)

const selector = `[data-testid="tweetText"]`

const feed = `<html><body>
<article><a href="/alice/status/1">time</a><div data-testid="tweetText">Hello <img alt="😀"> world</div></article>
<article><a href="/bob/status/2">time</a><div data-testid="tweetText">Second post<br>two lines</div></article>
<article><div data-testid="tweetText" id="third">Third <a href="/x">link</a></div></article>
</body></html>`

func load(t *testing.T, src string) *Host {
	t.Helper()
	h, err := Load(strings.NewReader(src), Options{Selector: selector, RowHeight: 100, ViewportHeight: 200, Logger: zap.NewNop()})
	require.NoError(t, err)
	return h
}

func render(t *testing.T, h *Host) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestLoad_DiscoversItems(t *testing.T) {
	h := load(t, feed)
	assert.Equal(t, []pipeline.ItemID{"/alice/status/1", "/bob/status/2", "third"}, h.Items())

	text, err := h.ExtractText("/alice/status/1")
	require.NoError(t, err)
	assert.Equal(t, "Hello 😀 world", text)

	text, err = h.ExtractText("/bob/status/2")
	require.NoError(t, err)
	assert.Equal(t, "Second post\ntwo lines", text)

	text, err = h.ExtractText("third")
	require.NoError(t, err)
	assert.Equal(t, "Third", text)

	_, err = h.ExtractText("missing")
	assert.Error(t, err)
}

func TestLoad_RequiresSelector(t *testing.T) {
	_, err := Load(strings.NewReader(feed), Options{})
	assert.Error(t, err)
}

func TestRender_ReplacesContainer(t *testing.T) {
	h := load(t, feed)
	id := pipeline.ItemID("/bob/status/2")

	require.NoError(t, h.Render(id, pipeline.Rendering{Kind: pipeline.RenderPending}))
	assert.Contains(t, render(t, h), `loading-spinner`)

	require.NoError(t, h.Render(id, pipeline.Rendering{Kind: pipeline.RenderTranslated, Text: "第二条<帖子>\n两行"}))
	require.NoError(t, h.Render(id, pipeline.Rendering{Kind: pipeline.RenderTranslated, Text: "第二条<帖子>\n两行"}))
	out := render(t, h)
	assert.Equal(t, 1, strings.Count(out, ContainerClass), "idempotent")
	assert.Contains(t, out, `<div class="translation-container">第二条&lt;帖子&gt;<br/>两行</div>`)
	assert.NotContains(t, out, "loading-spinner")

	// 容器在正文之外，不影响再次提取
	text, err := h.ExtractText(id)
	require.NoError(t, err)
	assert.Equal(t, "Second post\ntwo lines", text)

	require.NoError(t, h.Render(id, pipeline.Rendering{Kind: pipeline.RenderNone}))
	assert.NotContains(t, render(t, h), ContainerClass)
	_, ok := h.Rendering(id)
	assert.False(t, ok)
}

func TestRender_FailureMarker(t *testing.T) {
	h := load(t, feed)
	require.NoError(t, h.Render("third", pipeline.Rendering{Kind: pipeline.RenderFailed}))
	assert.Contains(t, render(t, h), pipeline.FailureMarker)
	assert.Error(t, h.Render("missing", pipeline.Rendering{Kind: pipeline.RenderFailed}))
}

func TestGeometry(t *testing.T) {
	h := load(t, feed)
	// 视口 0-200，中心 y=100；条目中心 50/150/250
	assert.InDelta(t, 50, h.Distance("/alice/status/1"), 0.01)
	assert.InDelta(t, 50, h.Distance("/bob/status/2"), 0.01)
	assert.InDelta(t, 150, h.Distance("third"), 0.01)
	assert.True(t, math.IsInf(h.Distance("missing"), 1))
	assert.Equal(t, []pipeline.ItemID{"/alice/status/1", "/bob/status/2"}, h.Visible())

	h.Scroll(200)
	assert.InDelta(t, 50, h.Distance("third"), 0.01)
	assert.Equal(t, []pipeline.ItemID{"third"}, h.Visible())
}

func TestReload_ReportsAddedAndChanged(t *testing.T) {
	h := load(t, feed)
	require.NoError(t, h.Render("/alice/status/1", pipeline.Rendering{Kind: pipeline.RenderTranslated, Text: "你好 😀 世界"}))

	updated := strings.Replace(feed, "Second post", "Second post, edited", 1)
	updated = strings.Replace(updated, "</body>",
		`<article><a href="/carol/status/4">t</a><div data-testid="tweetText">New one</div></article></body>`, 1)

	added, changed, err := h.Reload(strings.NewReader(updated))
	require.NoError(t, err)
	assert.Equal(t, []pipeline.ItemID{"/carol/status/4"}, added)
	assert.Equal(t, []pipeline.ItemID{"/bob/status/2"}, changed)
	assert.Contains(t, render(t, h), "你好 😀 世界", "existing rendering survives reload")
}

func TestReload_IgnoresPreviousOutput(t *testing.T) {
	h := load(t, feed)
	require.NoError(t, h.Render("third", pipeline.Rendering{Kind: pipeline.RenderFailed}))

	added, changed, err := h.Reload(strings.NewReader(render(t, h)))
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, changed)
	assert.Equal(t, 1, strings.Count(render(t, h), ContainerClass))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.html")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o644))

	h, err := LoadFile(path, Options{Selector: selector})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []pipeline.ItemID, 4)
	go func() {
		_ = h.Watch(ctx, path, func(added, changed []pipeline.ItemID) {
			select {
			case got <- append(added, changed...):
			default:
			}
		})
	}()

	updated := strings.Replace(feed, "Third", "Third edited", 1)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o644)
		select {
		case ids := <-got:
			return slices.Contains(ids, pipeline.ItemID("third"))
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
