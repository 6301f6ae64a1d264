package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ProviderStats 单个提供商的请求统计
type ProviderStats struct {
	ProviderName       string           `json:"provider_name"`
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	CharactersIn       int64            `json:"characters_in"`
	CharactersOut      int64            `json:"characters_out"`
	MinLatency         time.Duration    `json:"min_latency"`
	MaxLatency         time.Duration    `json:"max_latency"`
	TotalLatency       time.Duration    `json:"total_latency"`
	ErrorTypes         map[string]int64 `json:"error_types"`
	FirstRequestTime   time.Time        `json:"first_request_time"`
	LastRequestTime    time.Time        `json:"last_request_time"`
}

// AverageLatency 平均延迟
func (ps ProviderStats) AverageLatency() time.Duration {
	if ps.TotalRequests == 0 {
		return 0
	}
	return ps.TotalLatency / time.Duration(ps.TotalRequests)
}

// SuccessRate 成功率（百分比）
func (ps ProviderStats) SuccessRate() float64 {
	if ps.TotalRequests == 0 {
		return 0
	}
	return float64(ps.SuccessfulRequests) / float64(ps.TotalRequests) * 100
}

// RequestResult 单次请求结果
type RequestResult struct {
	Success   bool
	Latency   time.Duration
	CharsIn   int
	CharsOut  int
	ErrorType string
}

// StatsManager 统计管理器
type StatsManager struct {
	mu    sync.Mutex
	stats map[string]*ProviderStats
	now   func() time.Time
}

// NewStatsManager 创建统计管理器
func NewStatsManager() *StatsManager {
	return &StatsManager{
		stats: make(map[string]*ProviderStats),
		now:   time.Now,
	}
}

// RecordRequest 记录请求结果
func (sm *StatsManager) RecordRequest(provider string, result RequestResult) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.stats[provider]
	if !ok {
		s = &ProviderStats{
			ProviderName: provider,
			ErrorTypes:   make(map[string]int64),
			MinLatency:   result.Latency,
		}
		sm.stats[provider] = s
	}

	now := sm.now()
	if s.FirstRequestTime.IsZero() {
		s.FirstRequestTime = now
	}
	s.LastRequestTime = now

	s.TotalRequests++
	s.TotalLatency += result.Latency
	if result.Latency < s.MinLatency {
		s.MinLatency = result.Latency
	}
	if result.Latency > s.MaxLatency {
		s.MaxLatency = result.Latency
	}
	s.CharactersIn += int64(result.CharsIn)

	if result.Success {
		s.SuccessfulRequests++
		s.CharactersOut += int64(result.CharsOut)
		return
	}
	s.FailedRequests++
	if result.ErrorType != "" {
		s.ErrorTypes[result.ErrorType]++
	}
}

// Snapshot 返回按名称排序的统计副本
func (sm *StatsManager) Snapshot() []ProviderStats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := make([]ProviderStats, 0, len(sm.stats))
	for _, s := range sm.stats {
		cp := *s
		cp.ErrorTypes = make(map[string]int64, len(s.ErrorTypes))
		for k, v := range s.ErrorTypes {
			cp.ErrorTypes[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderName < out[j].ProviderName })
	return out
}

// RenderTable 以表格形式输出统计
func (sm *StatsManager) RenderTable(w io.Writer) {
	all := sm.Snapshot()
	if len(all) == 0 {
		fmt.Fprintln(w, "No statistics available.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Provider Statistics")
	t.AppendHeader(table.Row{"Provider", "Requests", "Success%", "Failed", "Avg", "Max", "Chars In", "Chars Out", "Errors"})

	for _, s := range all {
		t.AppendRow(table.Row{
			s.ProviderName,
			s.TotalRequests,
			fmt.Sprintf("%.1f", s.SuccessRate()),
			s.FailedRequests,
			s.AverageLatency().Round(time.Millisecond),
			s.MaxLatency.Round(time.Millisecond),
			s.CharactersIn,
			s.CharactersOut,
			formatErrorTypes(s.ErrorTypes),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

func formatErrorTypes(m map[string]int64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", k, m[k])
	}
	return out
}
