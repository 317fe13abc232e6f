package commands

import (
	"fmt"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/coordinator"
	"apti-backend/internal/notify"
	"apti-backend/internal/scrapers/apti"
	"apti-backend/lib/configutil"
	configlibsql "apti-backend/lib/configutil/libsql"
	"apti-backend/lib/restyutil"
	"apti-backend/lib/serviceutil"
)

const restyDumpDir = ".dev/resty"

type CredentialsConfig struct {
	Id       string `json:"id"`
	Password string `json:"password"`
}

type PortalConfig struct {
	BaseUrl          string `json:"base_url"`
	DwellingSource   string `json:"dwelling_source"`
	PeriodOffset     int    `json:"period_offset"`
	LabelOffset      int    `json:"label_offset"`
	CloudflareBypass bool   `json:"cloudflare_bypass"`
}

type IntervalsConfig struct {
	Session     string `json:"session"`
	Maintenance string `json:"maintenance"`
	Energy      string `json:"energy"`
}

type Config struct {
	Credentials CredentialsConfig   `json:"credentials"`
	Portal      PortalConfig        `json:"portal"`
	Intervals   IntervalsConfig     `json:"intervals"`
	History     configlibsql.Struct `json:"history"`
	Smtp        notify.SmtpConfig   `json:"smtp"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.Credentials.Id == "" || cfg.Credentials.Password == "" {
		serviceutil.Fatal("failed to read config", fmt.Errorf("credentials.id and credentials.password are required"))
	}
	return cfg
}

func (c Config) credentials() apti.Credentials {
	return apti.Credentials{
		Identifier: c.Credentials.Id,
		Secret:     c.Credentials.Password,
	}
}

func (c Config) clientOptions() apti.ClientOptions {
	opts := apti.ClientOptions{
		BaseUrl:          c.Portal.BaseUrl,
		DwellingSource:   apti.DwellingSource(c.Portal.DwellingSource),
		PeriodOffset:     c.Portal.PeriodOffset,
		LabelOffset:      c.Portal.LabelOffset,
		CloudflareBypass: c.Portal.CloudflareBypass,
	}
	if *verbose {
		output, err := restyutil.NewFilesystemOutput(restyDumpDir)
		if err != nil {
			serviceutil.Fatal("failed to create http dump directory", err)
		}
		opts.InstrumentOutput = output
	}
	return opts
}

func (c Config) coordinatorOptions(tel telemetry.API) (coordinator.Options, error) {
	session, err := configutil.ParseDuration(c.Intervals.Session, coordinator.DefaultSessionInterval)
	if err != nil {
		return coordinator.Options{}, fmt.Errorf("intervals.session: %w", err)
	}
	maintenance, err := configutil.ParseDuration(c.Intervals.Maintenance, coordinator.DefaultMaintenanceInterval)
	if err != nil {
		return coordinator.Options{}, fmt.Errorf("intervals.maintenance: %w", err)
	}
	energy, err := configutil.ParseDuration(c.Intervals.Energy, coordinator.DefaultEnergyInterval)
	if err != nil {
		return coordinator.Options{}, fmt.Errorf("intervals.energy: %w", err)
	}
	return coordinator.Options{
		Tel:                 tel,
		Client:              c.clientOptions(),
		SessionInterval:     session,
		MaintenanceInterval: maintenance,
		EnergyInterval:      energy,
	}, nil
}
