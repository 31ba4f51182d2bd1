package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("table", "fact_transactions").Msg("Appended rows for date")

	output := buf.String()
	if !strings.Contains(output, "Appended rows for date") {
		t.Errorf("Expected output to contain the message, got: %s", output)
	}
	if !strings.Contains(output, `"table":"fact_transactions"`) {
		t.Errorf("Expected output to contain the table field, got: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	FromContext(ctx).Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]any{
		"run_id": "abc",
		"asset":  "BTC",
		"date":   "2024-03-05",
	})
	log.Info().Msg("Starting run")

	output := buf.String()
	for _, want := range []string{`"run_id":"abc"`, `"asset":"BTC"`, `"date":"2024-03-05"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s, got: %s", want, output)
		}
	}
	// Fields are written in key order.
	if a, d, r := strings.Index(output, `"asset"`), strings.Index(output, `"date"`), strings.Index(output, `"run_id"`); !(a < d && d < r) {
		t.Errorf("Expected fields in key order, got: %s", output)
	}
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{name: "defaults", opts: Options{}, wantLevel: zerolog.InfoLevel},
		{name: "debug json", opts: Options{Level: "DEBUG", Format: "json"}, wantLevel: zerolog.DebugLevel},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, closer, err := Configure(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure: %v", err)
			}
			defer closer.Close()
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestConfigure_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.log")
	log, closer, err := Configure(Options{Format: "json", File: path})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	log.Info().Msg("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %s", data)
	}
}
