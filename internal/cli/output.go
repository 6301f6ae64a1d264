package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"

	"github.com/nerdneilsfield/transfeed/internal/pipeline"
)

const excerptWidth = 48

// itemRow 结果表中的一行
type itemRow struct {
	ID          pipeline.ItemID
	Source      string
	Rendering   pipeline.Rendering
	HasRendered bool
}

// excerpt 单行显示并按终端宽度截断
func excerpt(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

func statusText(r itemRow) string {
	if !r.HasRendered {
		return color.New(color.FgHiBlack).Sprint("skipped")
	}
	switch r.Rendering.Kind {
	case pipeline.RenderTranslated:
		return color.GreenString("translated")
	case pipeline.RenderFailed:
		return color.New(color.FgRed, color.Bold).Sprint(pipeline.FailureMarker)
	case pipeline.RenderPending:
		return color.YellowString("pending")
	default:
		return "none"
	}
}

// renderItems 输出每条帖子的处理结果
func renderItems(w io.Writer, rows []itemRow) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Item", "Status", "Original", "Translation"})
	for i, r := range rows {
		translated := ""
		if r.HasRendered && r.Rendering.Kind == pipeline.RenderTranslated {
			translated = excerpt(r.Rendering.Text, excerptWidth)
		}
		tw.AppendRow(table.Row{
			i + 1,
			excerpt(string(r.ID), 24),
			statusText(r),
			excerpt(r.Source, excerptWidth),
			translated,
		})
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}

// renderPipelineStats 输出流水线计数
func renderPipelineStats(w io.Writer, s pipeline.Stats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Counter", "Value"})
	tw.AppendRows([]table.Row{
		{"discovered", s.Discovered},
		{"admitted", s.Admitted},
		{"duplicates", s.Duplicates},
		{"superseded", s.Superseded},
		{"dispatched", s.Dispatched},
		{"translated", s.Translated},
		{"skipped", s.Skipped},
		{"retried", s.Retried},
		{"failed", s.Failed},
		{"stale", s.Stale},
	})
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// renderSummary 一行汇总
func renderSummary(w io.Writer, s pipeline.Stats) {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(w, "✅ %d translated, %d skipped", s.Translated, s.Skipped)
	if s.Failed > 0 {
		color.New(color.FgRed).Fprintf(w, ", %d failed", s.Failed)
	}
	fmt.Fprintln(w)
}
