package commands

import (
	"context"
	"strings"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/scrapers/apti"
	"apti-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-4)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs into the portal once and prints whether the session resolved.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()

		client, err := apti.NewClient(cfg.clientOptions(), telemetry.SlogAPI{})
		if err != nil {
			serviceutil.Fatal("failed to create client", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		session, err := client.Login(ctx, cfg.credentials())
		if err != nil {
			serviceutil.Fatal("failed to login", err)
		}

		t := NewTable()
		t.AppendRows([]table.Row{
			{"identifier", cfg.Credentials.Id},
			{"phone login", apti.IsPhoneNumber(cfg.Credentials.Id)},
			{"token", maskToken(session.Token)},
			{"site code", session.SiteCode},
			{"dwelling", session.DwellingCode},
			{"authenticated", session.Authenticated},
		})
		t.Render()

		if !session.Authenticated {
			serviceutil.Fatal("login succeeded but the session is not usable", apti.ErrDwellingUnresolved)
		}
	},
}
