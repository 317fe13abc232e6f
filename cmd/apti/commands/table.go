package commands

import (
	"fmt"
	"os"
	"sort"

	"apti-backend/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

func isTerminal(file *os.File) bool {
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewTable writes to stdout, tables are boxed and fit to the terminal width
// unless stdout is redirected.
func NewTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if !isTerminal(os.Stdout) {
		t.SetStyle(table.StyleLight)
		t.Style().Options.DrawBorder = false
		return t
	}
	t.SetStyle(table.StyleRounded)
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		t.SetAllowedRowLength(w)
	}
	return t
}

func renderSnapshot(snapshot store.Snapshot) {
	payment := snapshot.Maintenance.Payment
	t := NewTable()
	t.SetTitle("관리비")
	t.AppendRows([]table.Row{
		{"납부 마감일", payment.DueDate},
		{fmt.Sprintf("%s월분 부과 금액", payment.LeviedMonth), payment.LeviedAmount},
		{"납부할 금액", payment.PayableAmount},
		{"전년 동월 비교", payment.YearOverYear},
		{"우리집 이번달 금액", payment.CurrentMonthHousehold},
	})
	t.Render()

	t = NewTable()
	t.SetTitle("관리비 항목")
	t.AppendHeader(table.Row{"항목", "당월", "전월", "증감"})
	for _, item := range snapshot.Maintenance.Items {
		t.AppendRow(table.Row{item.Category, item.Current, item.Previous, item.Delta})
	}
	t.Render()

	usage := snapshot.Energy.Usage
	t = NewTable()
	t.SetTitle("에너지 사용량")
	t.AppendRow(table.Row{usage.Month, usage.TotalUsage})
	kinds := make([]string, 0, len(usage.Breakdown))
	for kind := range usage.Breakdown {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		t.AppendRow(table.Row{kind, usage.Breakdown[kind]})
	}
	t.AppendRow(table.Row{"비교", usage.AverageComparison})
	t.Render()

	t = NewTable()
	t.SetTitle("에너지 항목")
	t.AppendHeader(table.Row{"유형", "사용량", "요금", "비교"})
	for _, detail := range snapshot.Energy.Details {
		t.AppendRow(table.Row{detail.Type, detail.Usage, detail.Cost, detail.Comparison})
	}
	t.Render()

	for _, entry := range snapshot.Energy.Types {
		t = NewTable()
		t.SetTitle(entry.Type)
		t.AppendRows([]table.Row{
			{"총액", entry.TotalCost},
			{"비교", entry.Comparison},
		})
		if entry.Usage != "" {
			t.AppendRow(table.Row{"사용량", entry.Usage})
		}
		if entry.AverageUsage != "" {
			t.AppendRow(table.Row{"평균 사용량", entry.AverageUsage})
		}
		t.AppendSeparator()
		for _, field := range entry.Billing {
			t.AppendRow(table.Row{field.Label, field.Value})
		}
		t.Render()
	}

	if !snapshot.Maintenance.UpdatedAt.IsZero() || !snapshot.Energy.UpdatedAt.IsZero() {
		t = NewTable()
		t.AppendRows([]table.Row{
			{"maintenance updated", snapshot.Maintenance.UpdatedAt.Format("2006-01-02 15:04:05")},
			{"energy updated", snapshot.Energy.UpdatedAt.Format("2006-01-02 15:04:05")},
		})
		t.Render()
	}
}
