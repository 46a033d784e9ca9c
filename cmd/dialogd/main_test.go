package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dialogd/internal/conversation"
	"dialogd/internal/persist"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckReportsMissingModel(t *testing.T) {
	out, err := run(t, "check", "--model", filepath.Join(t.TempDir(), "missing.gguf"), "--log-level", "off")
	if err == nil {
		t.Fatalf("expected check to fail, output=%s", out)
	}
	if !strings.Contains(out, `"model_found": false`) {
		t.Fatalf("unexpected report: %s", out)
	}
}

func TestSnapshotShowAndExport(t *testing.T) {
	dir := t.TempDir()
	store := conversation.NewStore()
	id := store.CreateWithTitle("notes")
	store.Append(id, conversation.RoleUser, "hi", nil)
	data, err := store.ExportAll()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	snap := filepath.Join(dir, "snap.json")
	sink, err := persist.NewFileSink(snap)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if err := sink.Save(context.Background(), data); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfgPath := filepath.Join(dir, "dialogd.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  kind: file\n  path: "+snap+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := run(t, "snapshot", "show", "--config", cfgPath)
	if err != nil {
		t.Fatalf("show: %v (%s)", err, out)
	}
	if !strings.Contains(out, "saved ") {
		t.Fatalf("save time missing from listing: %s", out)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "notes") {
		t.Fatalf("conversation missing from listing: %s", out)
	}

	exported := filepath.Join(dir, "copy.json")
	if _, err := run(t, "snapshot", "export", exported, "--config", cfgPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	got, err := os.ReadFile(exported)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("exported snapshot differs: %v", err)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(cfgPath, []byte(`{"store":{"kind":"redis"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := run(t, "snapshot", "show", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
