package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/pkg/translation"
)

// fakeHost 内存中的页面
type fakeHost struct {
	mu      sync.Mutex
	texts   map[ItemID]string
	renders map[ItemID][]Rendering
	broken  map[ItemID]bool
}

func newFakeHost(texts map[ItemID]string) *fakeHost {
	return &fakeHost{texts: texts, renders: make(map[ItemID][]Rendering), broken: make(map[ItemID]bool)}
}

func (h *fakeHost) ExtractText(id ItemID) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.texts[id], nil
}

func (h *fakeHost) Render(id ItemID, r Rendering) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.broken[id] && r.Kind == RenderTranslated {
		return errors.New("node detached")
	}
	h.renders[id] = append(h.renders[id], r)
	return nil
}

func (h *fakeHost) setText(id ItemID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts[id] = text
}

func (h *fakeHost) last(id ItemID) Rendering {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs := h.renders[id]
	if len(rs) == 0 {
		return Rendering{Kind: RenderNone}
	}
	return rs[len(rs)-1]
}

func (h *fakeHost) count(id ItemID, kind RenderKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.renders[id] {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// fakeTranslator 把 text 翻译成 dict[text]，缺省为 "<target>:text"
type fakeTranslator struct {
	mu      sync.Mutex
	dict    map[string]string
	langs   map[string]string // text → 检测语言，缺省 "en"
	fail    map[string]int    // 剩余失败次数，负数表示总是失败
	calls   []string
	targets []string
	gate    chan struct{}
	started chan string

	active, maxActive int
}

func (f *fakeTranslator) Translate(ctx context.Context, text, target string) translation.Result {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.targets = append(f.targets, target)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate, started := f.gate, f.started
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- text
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return translation.Result{Text: text, Exhausted: true}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.fail[text]; ok && n != 0 {
		if n > 0 {
			f.fail[text] = n - 1
		}
		return translation.Result{
			Text:      text,
			Exhausted: true,
			Attempts:  1,
			Err:       translation.NewTranslationError(translation.ErrCodeRetryExhausted, "boom", nil),
		}
	}
	out, ok := f.dict[text]
	if !ok {
		out = target + ":" + text
	}
	lang := "en"
	if l, ok := f.langs[text]; ok {
		lang = l
	}
	return translation.Result{Text: out, SourceLang: lang, Attempts: 1}
}

func (f *fakeTranslator) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTranslator) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Concurrency = 2
	cfg.RequestIntervalMs = 0
	cfg.MaxRetry = 2
	cfg.ChangeDebounceMs = 0
	return cfg
}

func startPipeline(t *testing.T, store *config.Store, tr Translator, host Host, opts ...Option) *Pipeline {
	t.Helper()
	p := New(store, tr, host, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop")
		}
	})
	return p
}

func waitIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.WaitIdle(ctx))
}

func TestPipeline_TranslatesAroundEmoji(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "Hello 😀 world"})
	tr := &fakeTranslator{dict: map[string]string{"Hello": "你好", "world": "世界"}}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)

	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "你好 😀 世界"}, host.last("t1"))
	assert.Equal(t, []string{"Hello", "world"}, tr.callList(), "emoji never sent for translation")
	assert.Equal(t, 1, host.count("t1", RenderPending))
	assert.EqualValues(t, 1, p.Stats().Translated)
}

func TestPipeline_SkipsTargetLanguage(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "今天天气很好"})
	tr := &fakeTranslator{langs: map[string]string{"今天天气很好": "zh-CN"}}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)

	assert.Equal(t, RenderNone, host.last("t1").Kind)
	assert.Zero(t, host.count("t1", RenderTranslated))
	assert.EqualValues(t, 1, p.Stats().Skipped)
}

func TestPipeline_SkipsConfiguredLanguage(t *testing.T) {
	cfg := testConfig()
	cfg.SkipLangs = []string{"ja"}
	host := newFakeHost(map[ItemID]string{"t1": "おはよう"})
	tr := &fakeTranslator{langs: map[string]string{"おはよう": "ja"}}
	p := startPipeline(t, config.NewStore(cfg), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)
	assert.Equal(t, RenderNone, host.last("t1").Kind)
}

func TestPipeline_EmojiOnlyIsSkipped(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "😀 🎉"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)
	assert.Empty(t, tr.callList())
	assert.Equal(t, RenderNone, host.last("t1").Kind)
}

func TestPipeline_EmptyTextNotAdmitted(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": ""})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)
	assert.Empty(t, tr.callList())
	assert.Zero(t, host.count("t1", RenderPending))
	assert.EqualValues(t, 0, p.Stats().Admitted)
}

func TestPipeline_DuplicateDiscoveryAdmitsOnce(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "hello"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	p.OnDiscovered("t1")
	p.OnDiscovered("t1")
	waitIdle(t, p)

	assert.Equal(t, []string{"hello"}, tr.callList())
	s := p.Stats()
	assert.EqualValues(t, 3, s.Discovered)
	assert.EqualValues(t, 1, s.Admitted)
	assert.EqualValues(t, 2, s.Duplicates)
}

func TestPipeline_FailsExactlyOnce(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "hello"})
	tr := &fakeTranslator{fail: map[string]int{"hello": -1}}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)

	assert.Equal(t, RenderFailed, host.last("t1").Kind)
	assert.Equal(t, 1, host.count("t1", RenderFailed))
	assert.Len(t, tr.callList(), 3, "max_retry 2 means three requests")

	s := p.Stats()
	assert.EqualValues(t, 2, s.Retried)
	assert.EqualValues(t, 1, s.Failed)
	assert.EqualValues(t, 1, s.Released)
}

func TestPipeline_RetryThenSucceed(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "hello"})
	tr := &fakeTranslator{fail: map[string]int{"hello": 1}}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)

	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "zh-CN:hello"}, host.last("t1"))
	assert.Zero(t, host.count("t1", RenderFailed))
	assert.EqualValues(t, 1, p.Stats().Retried)
}

func TestPipeline_PartialFailureKeepsOriginalSegment(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "good 👍 bad"})
	tr := &fakeTranslator{fail: map[string]int{"bad": -1}}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)
	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "zh-CN:good 👍 bad"}, host.last("t1"))
}

func TestPipeline_RenderErrorCountsAsFailure(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"t1": "hello"})
	host.broken["t1"] = true
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("t1")
	waitIdle(t, p)
	assert.Equal(t, RenderFailed, host.last("t1").Kind)
	assert.EqualValues(t, 1, p.Stats().Failed)
}

func TestPipeline_RespectsConcurrency(t *testing.T) {
	texts := map[ItemID]string{}
	for _, id := range []ItemID{"a", "b", "c", "d", "e", "f"} {
		texts[id] = "text " + string(id)
	}
	host := newFakeHost(texts)
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	for id := range texts {
		p.OnDiscovered(id)
	}
	waitIdle(t, p)

	assert.Len(t, tr.callList(), 6)
	assert.LessOrEqual(t, tr.peak(), 2)
}

func TestPipeline_ChangeWhileQueuedReplacesText(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	host := newFakeHost(map[ItemID]string{"a": "first", "b": "short"})
	tr := &fakeTranslator{gate: make(chan struct{}), started: make(chan string, 8)}
	p := startPipeline(t, config.NewStore(cfg), tr, host,
		WithLocator(LocatorFunc(func(id ItemID) float64 {
			return map[ItemID]float64{"a": 0, "b": 100}[id]
		})))

	p.OnDiscovered("a")
	p.OnDiscovered("b")
	assert.Equal(t, "first", <-tr.started)

	p.OnChanged("b", "short, now longer")
	close(tr.gate)
	waitIdle(t, p)

	assert.Equal(t, []string{"first", "short, now longer"}, tr.callList())
	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "zh-CN:short, now longer"}, host.last("b"))
	assert.EqualValues(t, 1, p.Stats().Superseded)
}

func TestPipeline_ChangeWhileInFlightDropsStaleResult(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"a": "v1"})
	tr := &fakeTranslator{gate: make(chan struct{}), started: make(chan string, 8)}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("a")
	assert.Equal(t, "v1", <-tr.started)

	p.OnChanged("a", "v2")
	close(tr.gate)
	waitIdle(t, p)

	assert.Equal(t, []string{"v1", "v2"}, tr.callList())
	assert.Equal(t, 1, tr.peak(), "never two requests for one item")
	assert.Equal(t, 1, host.count("a", RenderTranslated), "stale v1 result not rendered")
	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "zh-CN:v2"}, host.last("a"))
	assert.EqualValues(t, 1, p.Stats().Stale)
	assert.EqualValues(t, 2, p.Stats().Released, "stale result releases its slot too")
}

func TestPipeline_ChangeAfterDoneRetranslates(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"a": "short"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("a")
	waitIdle(t, p)

	host.setText("a", "short, now longer")
	p.OnMutated("a")
	require.Eventually(t, func() bool {
		return host.last("a").Text == "zh-CN:short, now longer"
	}, 5*time.Second, 10*time.Millisecond)

	// 文本未变时的变动通知被忽略
	p.OnMutated("a")
	waitIdle(t, p)
	assert.Len(t, tr.callList(), 2)
}

func TestPipeline_WaitIdleCoversDebouncedChange(t *testing.T) {
	cfg := testConfig()
	cfg.ChangeDebounceMs = 250
	host := newFakeHost(map[ItemID]string{"a": "short"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(cfg), tr, host)

	p.OnDiscovered("a")
	waitIdle(t, p)

	host.setText("a", "short, now longer")
	p.OnMutated("a")
	waitIdle(t, p)

	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "zh-CN:short, now longer"}, host.last("a"))
	assert.Equal(t, []string{"short", "short, now longer"}, tr.callList())
}

func TestPipeline_EmptyChangeKeepsTranslation(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"a": "hello"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("a")
	waitIdle(t, p)
	require.Equal(t, "zh-CN:hello", host.last("a").Text)

	host.setText("a", "")
	p.OnMutated("a")
	p.OnChanged("a", "  \n")
	waitIdle(t, p)

	assert.Equal(t, Rendering{Kind: RenderTranslated, Text: "zh-CN:hello"}, host.last("a"))
	assert.Zero(t, host.count("a", RenderNone))
	assert.Len(t, tr.callList(), 1)

	// 文本恢复后与上次已知文本相同，不再翻译
	host.setText("a", "hello")
	p.OnMutated("a")
	waitIdle(t, p)
	assert.Len(t, tr.callList(), 1)
}

func TestPipeline_ChangeToTargetLanguageRemovesTranslation(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"a": "hello"})
	tr := &fakeTranslator{langs: map[string]string{"你好呀": "zh-CN"}}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("a")
	waitIdle(t, p)
	require.Equal(t, RenderTranslated, host.last("a").Kind)

	p.OnChanged("a", "你好呀")
	waitIdle(t, p)
	assert.Equal(t, RenderNone, host.last("a").Kind)
}

func TestPipeline_TargetLanguageChangeRetranslatesAll(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"a": "one", "b": "two", "c": ""})
	tr := &fakeTranslator{}
	store := config.NewStore(testConfig())
	p := startPipeline(t, store, tr, host)

	for _, id := range []ItemID{"a", "b", "c"} {
		p.OnDiscovered(id)
	}
	waitIdle(t, p)
	require.Equal(t, "zh-CN:one", host.last("a").Text)

	require.NoError(t, store.Update(func(c *config.Config) { c.TargetLang = "ja" }))
	require.Eventually(t, func() bool {
		return host.last("a").Text == "ja:one" && host.last("b").Text == "ja:two"
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, tr.callList(), 4)
	assert.GreaterOrEqual(t, host.count("a", RenderNone), 1, "old translation removed first")
	assert.Zero(t, host.count("c", RenderPending))
}

func TestPipeline_RefreshRetranslates(t *testing.T) {
	host := newFakeHost(map[ItemID]string{"a": "one"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(testConfig()), tr, host)

	p.OnDiscovered("a")
	waitIdle(t, p)
	p.Refresh()
	waitIdle(t, p)

	assert.Equal(t, []string{"one", "one"}, tr.callList())
	assert.Equal(t, 2, host.count("a", RenderTranslated))
}

func TestPipeline_NearestFirst(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.ViewportCenterRadiusPx = 0
	host := newFakeHost(map[ItemID]string{"block": "block", "far": "far", "near": "near"})
	tr := &fakeTranslator{gate: make(chan struct{}), started: make(chan string, 8)}
	dist := map[ItemID]float64{"block": 0, "far": 900, "near": 50}
	p := startPipeline(t, config.NewStore(cfg), tr, host,
		WithLocator(LocatorFunc(func(id ItemID) float64 { return dist[id] })))

	p.OnDiscovered("block")
	assert.Equal(t, "block", <-tr.started)
	p.OnDiscovered("far")
	p.OnDiscovered("near")
	close(tr.gate)
	waitIdle(t, p)

	assert.Equal(t, []string{"block", "near", "far"}, tr.callList())
}

func TestPipeline_NearCentreDiscoveriesFollowDistance(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.ViewportCenterRadiusPx = 200
	host := newFakeHost(map[ItemID]string{"block": "block", "edge": "edge", "near": "near", "mid": "mid"})
	tr := &fakeTranslator{gate: make(chan struct{}), started: make(chan string, 8)}
	dist := map[ItemID]float64{"block": 0, "near": 10, "mid": 150, "edge": 190}
	p := startPipeline(t, config.NewStore(cfg), tr, host,
		WithLocator(LocatorFunc(func(id ItemID) float64 { return dist[id] })))

	p.OnDiscovered("block")
	assert.Equal(t, "block", <-tr.started)
	p.OnDiscovered("edge")
	p.OnDiscovered("mid")
	p.OnDiscovered("near")
	close(tr.gate)
	waitIdle(t, p)

	assert.Equal(t, []string{"block", "near", "mid", "edge"}, tr.callList())
}

func TestPipeline_ChangesDispatchInArrivalOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	host := newFakeHost(map[ItemID]string{"block": "block", "x": "x0", "y": "y0", "z": "z0"})
	tr := &fakeTranslator{}
	p := startPipeline(t, config.NewStore(cfg), tr, host)

	for _, id := range []ItemID{"x", "y", "z"} {
		p.OnDiscovered(id)
	}
	waitIdle(t, p)

	tr.mu.Lock()
	tr.gate = make(chan struct{})
	tr.started = make(chan string, 8)
	gate, started := tr.gate, tr.started
	tr.mu.Unlock()

	p.OnDiscovered("block")
	assert.Equal(t, "block", <-started)
	p.OnChanged("x", "x1")
	p.OnChanged("y", "y1")
	p.OnChanged("z", "z1")
	close(gate)
	waitIdle(t, p)

	assert.Equal(t, []string{"block", "x1", "y1", "z1"}, tr.callList()[3:])
}

func TestPipeline_RunTwice(t *testing.T) {
	p := startPipeline(t, config.NewStore(testConfig()), &fakeTranslator{}, newFakeHost(nil))
	waitIdle(t, p)
	assert.ErrorIs(t, p.Run(context.Background()), ErrAlreadyRunning)
}

func TestDominantLanguage(t *testing.T) {
	assert.Equal(t, "", dominantLanguage(nil))
	assert.Equal(t, "en", dominantLanguage(map[string]int{"en": 10, "ja": 3}))
	assert.Equal(t, "en", dominantLanguage(map[string]int{"ja": 4, "en": 4}), "ties pick the smaller code")
}

func TestTranslateRequestHonoursInterval(t *testing.T) {
	cfg := testConfig()
	cfg.RequestIntervalMs = 30
	tr := &fakeTranslator{}

	start := time.Now()
	res := translateRequest(context.Background(), tr, &Request{ID: "r", Text: "one 🙂 two 🙂 three"}, cfg, zap.NewNop())
	assert.Equal(t, resultTranslated, res.kind)
	assert.Equal(t, 3, res.calls)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.True(t, strings.HasPrefix(res.text, "zh-CN:one 🙂"))
}

func TestTranslateText(t *testing.T) {
	tr := &fakeTranslator{dict: map[string]string{"Hello": "你好", "world": "世界"}}
	out := TranslateText(context.Background(), tr, "Hello 😀 world", testConfig(), nil)
	assert.Equal(t, RenderTranslated, out.Kind)
	assert.Equal(t, "你好 😀 世界", out.Text)
	assert.Equal(t, 2, out.Segments)

	out = TranslateText(context.Background(), &fakeTranslator{fail: map[string]int{"x": -1}}, "x", testConfig(), nil)
	assert.Equal(t, RenderFailed, out.Kind)
	assert.Error(t, out.Err)
}
