package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunOfflineValidate(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nSELECT 1;\n\n-- +goose Down\nSELECT 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260301090000_create_orders.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	out, handled, err := runOffline(options{cmd: "validate", dir: dir})
	if !handled || err != nil {
		t.Fatalf("expected validate handled without error, got handled=%v err=%v", handled, err)
	}
	if out != "migration validation passed" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunOfflineCreateRequiresName(t *testing.T) {
	_, handled, err := runOffline(options{cmd: "create", dir: t.TempDir()})
	if !handled || err == nil {
		t.Fatalf("expected create without name to fail")
	}
}

func TestRunOfflineCreate(t *testing.T) {
	dir := t.TempDir()
	out, handled, err := runOffline(options{cmd: "create", dir: dir, name: "Add payout index"})
	if !handled || err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasSuffix(out, "_add_payout_index.sql") {
		t.Fatalf("unexpected path %q", out)
	}
}

func TestRunOfflineSkipsDatabaseCommands(t *testing.T) {
	if _, handled, _ := runOffline(options{cmd: "up"}); handled {
		t.Fatalf("up must not be handled offline")
	}
}

func TestRunOnlineRejectsUnknownCommand(t *testing.T) {
	err := runOnline(context.Background(), nil, nil, options{cmd: "reset"})
	if err == nil || !strings.Contains(err.Error(), "unknown -cmd") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}
