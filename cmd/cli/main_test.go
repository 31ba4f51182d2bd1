package main

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/crypto-etl/internal/config"
	"github.com/dvloznov/crypto-etl/internal/ingest"
	"github.com/dvloznov/crypto-etl/internal/logger"
)

func TestSetup_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("CRYPTOETL_PROJECT_ID", "env-project")
	t.Setenv("CRYPTOETL_DATASET", "env-dataset")

	a := &app{log: logger.New()}
	root := a.rootCmd()
	load, _, err := root.Find([]string{"load"})
	if err != nil {
		t.Fatalf("Find(load) error = %v", err)
	}
	if err := load.ParseFlags([]string{
		"--project", "flag-project",
		"--date", "2024-03-05",
		"--workers", "4",
		"--timeout", "5m",
	}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if err := a.setup(load); err != nil {
		t.Fatalf("setup() error = %v", err)
	}

	if a.cfg.ProjectID != "flag-project" {
		t.Errorf("ProjectID = %q, want flag-project", a.cfg.ProjectID)
	}
	if a.cfg.Dataset != "env-dataset" {
		t.Errorf("Dataset = %q, want env-dataset", a.cfg.Dataset)
	}
	if a.cfg.Date != "2024-03-05" {
		t.Errorf("Date = %q, want 2024-03-05", a.cfg.Date)
	}
	if a.cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", a.cfg.Workers)
	}
	if a.cfg.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", a.cfg.Timeout)
	}
	// Unset flags keep the defaults.
	if a.cfg.Frequency != "15m" || a.cfg.Asset != "BTC" {
		t.Errorf("Frequency, Asset = %q, %q, want 15m, BTC", a.cfg.Frequency, a.cfg.Asset)
	}
}

func TestParseDateFlag(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    civil.Date
		wantErr bool
	}{
		{name: "valid", value: "2024-02-29", want: civil.Date{Year: 2024, Month: 2, Day: 29}},
		{name: "missing", value: "", wantErr: true},
		{name: "not a date", value: "2024-02-30", wantErr: true},
		{name: "wrong layout", value: "05/03/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{}
			cmd := a.backfillCmd()
			if tt.value != "" {
				if err := cmd.Flags().Set("from", tt.value); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
			}
			got, err := parseDateFlag(cmd, "from")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDateFlag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseDateFlag() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUploadObject(t *testing.T) {
	date := civil.Date{Year: 2024, Month: 3, Day: 5}
	width := func(freq string) config.Config {
		cfg := config.Default()
		cfg.Frequency = freq
		return cfg
	}

	tests := []struct {
		name    string
		cfg     config.Config
		kind    string
		file    string
		want    string
		wantErr bool
	}{
		{
			name: "prices",
			cfg:  width("1h"),
			kind: "prices",
			file: "/tmp/prices.parquet",
			want: "btc_prices/2024-03-05/btc_prices_2024-03-05_1h.parquet",
		},
		{
			name: "prices frequency is normalized",
			cfg:  width("15M"),
			kind: "prices",
			file: "/tmp/prices.parquet",
			want: "btc_prices/2024-03-05/btc_prices_2024-03-05_15m.parquet",
		},
		{
			name:    "prices unsupported frequency",
			cfg:     width("5m"),
			kind:    "prices",
			file:    "/tmp/prices.parquet",
			wantErr: true,
		},
		{
			name: "transactions",
			cfg:  config.Default(),
			kind: "transactions",
			file: "/tmp/part-0001.parquet",
			want: "btc_transactions/2024-03-05/btc_transactions_2024-03-05_part-0001.parquet",
		},
		{
			name:    "unknown kind",
			cfg:     config.Default(),
			kind:    "trades",
			file:    "/tmp/x.parquet",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := uploadObject(tt.cfg, tt.kind, date, tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("uploadObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("uploadObject() = %q, want %q", got, tt.want)
			}
		})
	}

	// The prices object is exactly what load fetches.
	w, _ := width("15M").BarWidth()
	got, _ := uploadObject(width("15M"), "prices", date, "x.parquet")
	if want := ingest.PricesObject("BTC", date, w.Label); got != want {
		t.Errorf("upload object %q differs from load object %q", got, want)
	}
}
