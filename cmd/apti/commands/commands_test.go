package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/coordinator"
	"apti-backend/internal/scrapers/apti"
	"apti-backend/lib/configutil"

	"github.com/stretchr/testify/require"
)

const testConfig = `{
  // phone number login
  credentials: { id: "01012345678", password: "hunter2" },
  portal: { dwelling_source: "payment", period_offset: 3 },
  intervals: { session: "10m", energy: "12h" },
  history: { file: "apti.db" },
  smtp: { server: "smtp.example.com", port: 587, email_address: "apti@example.com", to: ["resident@example.com"] },
}`

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))

	cfg, err := configutil.ReadConfig[Config](path)
	require.NoError(t, err)

	require.Equal(t, apti.Credentials{Identifier: "01012345678", Secret: "hunter2"}, cfg.credentials())
	require.True(t, cfg.History.Enabled())
	require.True(t, cfg.Smtp.Enabled())

	opts, err := cfg.coordinatorOptions(&telemetry.RecorderAPI{})
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, opts.SessionInterval)
	require.Equal(t, coordinator.DefaultMaintenanceInterval, opts.MaintenanceInterval)
	require.Equal(t, 12*time.Hour, opts.EnergyInterval)
	require.Equal(t, apti.DwellingFromPayment, opts.Client.DwellingSource)
	require.Equal(t, 3, opts.Client.PeriodOffset)
	require.Nil(t, opts.Client.InstrumentOutput)

	cfg.Intervals.Maintenance = "daily"
	_, err = cfg.coordinatorOptions(&telemetry.RecorderAPI{})
	require.ErrorContains(t, err, "intervals.maintenance")
}

func TestMaskToken(t *testing.T) {
	require.Equal(t, "abcd****", maskToken("abcdefgh"))
	require.Equal(t, "***", maskToken("abc"))
	require.Equal(t, "", maskToken(""))
}

func TestFormatBreakdown(t *testing.T) {
	require.Equal(t, "수도 18%, 전기 67%", formatBreakdown(map[string]string{"전기": "67%", "수도": "18%"}))
	require.Equal(t, "", formatBreakdown(nil))
}
