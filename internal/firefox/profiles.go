package firefox

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Profile is a Firefox profile that has a saved session to import.
type Profile struct {
	Name    string
	Dir     string // absolute profile directory
	Session string // session backup inside Dir that Import reads
	Default bool
}

// Session backups Firefox keeps under sessionstore-backups, newest first.
var sessionBackups = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// SessionFile returns the newest session backup in a profile directory, or
// "" when the profile has none.
func SessionFile(dir string) string {
	for _, name := range sessionBackups {
		path := filepath.Join(dir, "sessionstore-backups", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FirefoxDir returns the platform's Firefox directory, the one holding
// profiles.ini.
func FirefoxDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "linux":
		return filepath.Join(home, ".mozilla", "firefox")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox")
	default:
		return ""
	}
}

type iniSection struct {
	name string
	keys map[string]string
}

func readINI(r io.Reader) ([]iniSection, error) {
	var sections []iniSection
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			sections = append(sections, iniSection{name: line[1 : len(line)-1], keys: map[string]string{}})
		case len(sections) > 0:
			if k, v, ok := strings.Cut(line, "="); ok {
				sections[len(sections)-1].keys[k] = v
			}
		}
	}
	return sections, scanner.Err()
}

// ReadProfiles parses profiles.ini in firefoxDir and returns the profiles
// with a session backup, in file order. The profile an [Install...] section
// points at is the default; without one, the profile flagged Default=1 is.
func ReadProfiles(firefoxDir string) ([]Profile, error) {
	f, err := os.Open(filepath.Join(firefoxDir, "profiles.ini"))
	if err != nil {
		return nil, fmt.Errorf("open profiles.ini: %w", err)
	}
	defer f.Close()

	sections, err := readINI(f)
	if err != nil {
		return nil, fmt.Errorf("read profiles.ini: %w", err)
	}

	var installed string
	for _, s := range sections {
		if strings.HasPrefix(s.name, "Install") && s.keys["Default"] != "" {
			installed = s.keys["Default"]
			break
		}
	}

	var profiles []Profile
	for _, s := range sections {
		if !strings.HasPrefix(s.name, "Profile") || s.keys["Path"] == "" {
			continue
		}
		dir := s.keys["Path"]
		if s.keys["IsRelative"] == "1" {
			dir = filepath.Join(firefoxDir, dir)
		}
		session := SessionFile(dir)
		if session == "" {
			continue
		}
		isDefault := s.keys["Default"] == "1"
		if installed != "" {
			isDefault = s.keys["Path"] == installed
		}
		profiles = append(profiles, Profile{
			Name:    s.keys["Name"],
			Dir:     dir,
			Session: session,
			Default: isDefault,
		})
	}
	return profiles, nil
}

// DefaultProfile picks the default profile, else the first one.
func DefaultProfile(profiles []Profile) (Profile, error) {
	if len(profiles) == 0 {
		return Profile{}, fmt.Errorf("no Firefox profile with a session file")
	}
	for _, p := range profiles {
		if p.Default {
			return p, nil
		}
	}
	return profiles[0], nil
}

// DiscoverProfiles finds the Firefox profiles on this system that have a
// session to import.
func DiscoverProfiles() ([]Profile, error) {
	dir := FirefoxDir()
	if dir == "" {
		return nil, fmt.Errorf("could not find Firefox directory for %s", runtime.GOOS)
	}
	return ReadProfiles(dir)
}

// Preview is what importing a profile's session would create: one tree per
// window and one tab per importable page.
type Preview struct {
	Profile
	Windows int
	Tabs    int
	Err     error
}

// PreviewProfile reads p's session and counts what Import would open.
func PreviewProfile(p Profile) Preview {
	s, err := ReadSession(p.Session)
	if err != nil {
		return Preview{Profile: p, Err: err}
	}
	windows, tabs := s.Importable()
	return Preview{Profile: p, Windows: windows, Tabs: tabs}
}
