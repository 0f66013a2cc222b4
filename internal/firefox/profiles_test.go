package firefox

import (
	"os"
	"path/filepath"
	"testing"
)

// writeProfile creates the profile directory dir with the named
// session backups, each holding session.
func writeProfile(t *testing.T, dir, session string, backups ...string) {
	t.Helper()
	backupDir := filepath.Join(dir, "sessionstore-backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		t.Fatal(err)
	}
	payload, err := CompressMozLz4([]byte(session))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range backups {
		if err := os.WriteFile(filepath.Join(backupDir, name), payload, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func writeINI(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "profiles.ini"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSessionFilePrefersRecovery(t *testing.T) {
	dir := t.TempDir()
	if got := SessionFile(dir); got != "" {
		t.Errorf("SessionFile of empty profile = %q", got)
	}

	writeProfile(t, dir, twoWindowSession, "previous.jsonlz4")
	want := filepath.Join(dir, "sessionstore-backups", "previous.jsonlz4")
	if got := SessionFile(dir); got != want {
		t.Errorf("SessionFile = %q, want %q", got, want)
	}

	writeProfile(t, dir, twoWindowSession, "recovery.jsonlz4")
	want = filepath.Join(dir, "sessionstore-backups", "recovery.jsonlz4")
	if got := SessionFile(dir); got != want {
		t.Errorf("SessionFile = %q, want %q", got, want)
	}
}

func TestReadProfiles(t *testing.T) {
	ffDir := t.TempDir()
	elsewhere := t.TempDir()
	writeProfile(t, filepath.Join(ffDir, "a1.work"), twoWindowSession, "recovery.jsonlz4")
	writeProfile(t, elsewhere, twoWindowSession, "previous.jsonlz4")
	// Never ran: no session backups.
	os.MkdirAll(filepath.Join(ffDir, "b2.empty"), 0755)

	writeINI(t, ffDir, `[General]
StartWithLastProfile=1

; hand-edited
[Profile0]
Name=work
IsRelative=1
Path=a1.work
Default=1

[Profile1]
Name=empty
IsRelative=1
Path=b2.empty

[Profile2]
Name=portable
IsRelative=0
Path=`+elsewhere+`
`)

	profiles, err := ReadProfiles(ffDir)
	if err != nil {
		t.Fatalf("ReadProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("profiles = %+v, want work and portable", profiles)
	}

	work := profiles[0]
	if work.Name != "work" || work.Dir != filepath.Join(ffDir, "a1.work") || !work.Default {
		t.Errorf("work = %+v", work)
	}
	if work.Session != filepath.Join(ffDir, "a1.work", "sessionstore-backups", "recovery.jsonlz4") {
		t.Errorf("work session = %q", work.Session)
	}

	portable := profiles[1]
	if portable.Dir != elsewhere || portable.Default {
		t.Errorf("portable = %+v", portable)
	}
	if filepath.Base(portable.Session) != "previous.jsonlz4" {
		t.Errorf("portable session = %q", portable.Session)
	}

	// The session a profile names is the one Import reads.
	s, err := ReadSession(portable.Session)
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(s.Windows) != 2 {
		t.Errorf("windows = %d, want 2", len(s.Windows))
	}
}

func TestReadProfilesInstallDefault(t *testing.T) {
	ffDir := t.TempDir()
	writeProfile(t, filepath.Join(ffDir, "old"), twoWindowSession, "recovery.jsonlz4")
	writeProfile(t, filepath.Join(ffDir, "new"), twoWindowSession, "recovery.jsonlz4")
	writeINI(t, ffDir, `[Profile0]
Name=old
IsRelative=1
Path=old
Default=1

[Profile1]
Name=new
IsRelative=1
Path=new

[Install308046B0AF4A39CB]
Default=new
Locked=1
`)

	profiles, err := ReadProfiles(ffDir)
	if err != nil {
		t.Fatalf("ReadProfiles: %v", err)
	}
	p, err := DefaultProfile(profiles)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "new" {
		t.Errorf("default = %q, want the installed profile", p.Name)
	}
}

func TestReadProfilesWithoutINI(t *testing.T) {
	if _, err := ReadProfiles(t.TempDir()); err == nil {
		t.Error("expected error without profiles.ini")
	}
}

func TestDefaultProfile(t *testing.T) {
	if _, err := DefaultProfile(nil); err == nil {
		t.Error("expected error for no profiles")
	}
	profiles := []Profile{{Name: "a"}, {Name: "b", Default: true}}
	if p, _ := DefaultProfile(profiles); p.Name != "b" {
		t.Errorf("picked %q, want b", p.Name)
	}
	if p, _ := DefaultProfile(profiles[:1]); p.Name != "a" {
		t.Errorf("picked %q, want a", p.Name)
	}
}

func TestPreviewProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, twoWindowSession, "recovery.jsonlz4")
	p := Profile{Name: "work", Dir: dir, Session: SessionFile(dir)}

	got := PreviewProfile(p)
	if got.Err != nil {
		t.Fatalf("PreviewProfile: %v", got.Err)
	}
	// about:newtab isn't imported.
	if got.Windows != 2 || got.Tabs != 3 {
		t.Errorf("preview = %d windows, %d tabs, want 2, 3", got.Windows, got.Tabs)
	}

	// The preview matches what Import opens.
	m := testModel(t)
	s, err := ReadSession(p.Session)
	if err != nil {
		t.Fatal(err)
	}
	res := importSession(t, m, s)
	if len(res.Trees) != got.Windows || res.Tabs != got.Tabs {
		t.Errorf("import = %d trees, %d tabs, preview said %d, %d",
			len(res.Trees), res.Tabs, got.Windows, got.Tabs)
	}

	broken := PreviewProfile(Profile{Name: "gone", Dir: dir})
	if broken.Err == nil {
		t.Error("expected error for a profile without a session")
	}
}
