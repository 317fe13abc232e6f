package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"apti-backend/internal/components/telemetry"
	"apti-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var errHistoryNotConfigured = errors.New("history.file or history.url must be set")

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().IntP("limit", "n", 12, "The amount of recorded cycles to show.")
	rootCmd.AddCommand(historyCmd)
}

func formatBreakdown(breakdown map[string]string) string {
	kinds := make([]string, 0, len(breakdown))
	for kind := range breakdown {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, kind := range kinds {
		parts[i] = fmt.Sprintf("%s %s", kind, breakdown[kind])
	}
	return strings.Join(parts, ", ")
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>]",
	Short: "Prints the recorded payment and energy history.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		h := openHistory(cmd.Context(), cfg, telemetry.SlogAPI{})

		payments, err := h.Payments(cmd.Context(), *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read payment history", err)
		}
		t := NewTable()
		t.SetTitle("관리비")
		t.AppendHeader(table.Row{"recorded", "부과 월", "부과 금액", "납부할 금액", "납부 마감일"})
		for _, p := range payments {
			t.AppendRow(table.Row{
				p.Time.Format("2006-01-02 15:04"),
				p.LeviedMonth,
				p.LeviedAmount,
				p.PayableAmount,
				p.DueDate,
			})
		}
		t.Render()

		usages, err := h.Usages(cmd.Context(), *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read energy history", err)
		}
		t = NewTable()
		t.SetTitle("에너지")
		t.AppendHeader(table.Row{"recorded", "월", "사용량", "비율"})
		for _, u := range usages {
			t.AppendRow(table.Row{
				u.Time.Format("2006-01-02 15:04"),
				u.Month,
				u.TotalUsage,
				formatBreakdown(u.Breakdown),
			})
		}
		t.Render()
	},
}
