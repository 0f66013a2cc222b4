package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lotas/tabforest/internal/firefox"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", filepath.Join(dir, "test.db"), "--log-dir", dir}, args...))
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestOpenAndShow(t *testing.T) {
	dir := t.TempDir()

	out := run(t, dir, "open", "https://a.example/", "https://b.example/")
	if !strings.Contains(out, "Opened tree 1 with 2 tabs") {
		t.Errorf("open printed %q", out)
	}

	out = run(t, dir, "show", "--json=false")
	if !strings.Contains(out, "Tree 1") || !strings.Contains(out, "https://b.example/") {
		t.Errorf("show printed %q", out)
	}

	out = run(t, dir, "show", "--json")
	var trees []treeJSON
	if err := json.Unmarshal([]byte(out), &trees); err != nil {
		t.Fatalf("show --json: %v\n%s", err, out)
	}
	if len(trees) != 1 || len(trees[0].Tabs) != 2 || trees[0].Tabs[0].URL != "https://a.example/" {
		t.Errorf("trees = %+v", trees)
	}
}

func TestUncloseWithNothingClosed(t *testing.T) {
	dir := t.TempDir()
	if out := run(t, dir, "unclose"); !strings.Contains(out, "No closed trees.") {
		t.Errorf("unclose printed %q", out)
	}
}

func TestResolveDBPath(t *testing.T) {
	old := dbPath
	defer func() { dbPath = old }()

	dbPath = ""
	t.Setenv("TABFOREST_DB", "/tmp/env.db")
	if p, _ := resolveDBPath(); p != "/tmp/env.db" {
		t.Errorf("env path = %q", p)
	}
	dbPath = "/tmp/flag.db"
	if p, _ := resolveDBPath(); p != "/tmp/flag.db" {
		t.Errorf("flag path = %q", p)
	}
}

func TestImportCountsImportedTabs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	ffDir := firefox.FirefoxDir()
	if ffDir == "" {
		t.Skip("no Firefox directory on this platform")
	}
	backupDir := filepath.Join(ffDir, "p1.work", "sessionstore-backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(ffDir, "profiles.ini"), []byte("[Profile0]\nName=work\nIsRelative=1\nPath=p1.work\nDefault=1\n"), 0644)
	payload, err := firefox.CompressMozLz4([]byte(`{"windows": [
		{"selected": 1, "tabs": [
			{"entries": [{"url": "about:newtab"}], "index": 1},
			{"entries": [{"url": "https://a.example/"}], "index": 1}
		]},
		{"tabs": [{"entries": [{"url": "about:blank"}], "index": 1}]}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(backupDir, "recovery.jsonlz4"), payload, 0644)

	out := run(t, dir, "profiles")
	if !strings.Contains(out, "work [default]: 1 windows, 1 tabs") {
		t.Errorf("profiles printed %q", out)
	}

	// The about: pages aren't opened, so they aren't counted.
	out = run(t, dir, "import", "--profile", "work")
	if !strings.Contains(out, "Imported 1 windows (1 tabs) from work") {
		t.Errorf("import printed %q", out)
	}
}
