package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var record map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &record); err != nil {
		t.Fatalf("unmarshaling log record: %v", err)
	}
	return record
}

func TestSetup_NonTerminalUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo)

	slog.Info("database_ready", "db_path", "/var/lib/boxprov/runs.db")

	record := lastRecord(t, &buf)
	if record["msg"] != "database_ready" {
		t.Errorf("msg = %v, want database_ready", record["msg"])
	}
	if record["db_path"] != "/var/lib/boxprov/runs.db" {
		t.Errorf("db_path = %v", record["db_path"])
	}
}

func TestVersionLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo)

	Version("release_current", "release", "3.20.3")

	record := lastRecord(t, &buf)
	if record["level"] != "VERSION" {
		t.Errorf("level = %v, want VERSION", record["level"])
	}
	if record["release"] != "3.20.3" {
		t.Errorf("release = %v", record["release"])
	}
}

func TestSuccessLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo)

	Success("provision_complete", "first_run", true)

	record := lastRecord(t, &buf)
	if record["level"] != "SUCCESS" {
		t.Errorf("level = %v, want SUCCESS", record["level"])
	}
}

func TestSetup_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelWarn)

	slog.Info("ignored")
	if buf.Len() != 0 {
		t.Errorf("info record emitted below level filter: %s", buf.String())
	}

	slog.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn record missing")
	}
}

func TestStandardLevelsUntouched(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo)

	slog.Warn("reboot_scheduled")

	record := lastRecord(t, &buf)
	if record["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", record["level"])
	}
}
