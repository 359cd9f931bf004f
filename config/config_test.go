package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	c, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if c.AppPort != "8080" || c.DBDriver != "mysql" || c.DailyXPCap != 500 || c.DailyPointsCap != 1000 {
		t.Errorf("defaults = %+v", c)
	}
	p, err := c.LedgerPolicy()
	if err != nil {
		t.Fatalf("LedgerPolicy: %v", err)
	}
	if p.MaxTaskPoints != 500 || p.MaxHabitPoints != 100 || p.MaxMultiplier.StringFixed(2) != "1.50" {
		t.Errorf("policy = %+v", p)
	}
	if c.LeaderboardTTL() != time.Minute {
		t.Errorf("ttl = %s", c.LeaderboardTTL())
	}
}

func TestLoadFromFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"app_port": "9000", "daily_xp_cap": 800, "ledger_timezone": "Europe/Berlin", "db_driver": "sqlite"}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DAILY_XP_CAP", "300")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	c, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if c.AppPort != "9000" || c.DBDriver != "sqlite" {
		t.Errorf("file values not applied: %+v", c)
	}
	if c.DailyXPCap != 300 {
		t.Errorf("env override lost, cap = %d", c.DailyXPCap)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %q", c.AllowedOrigins)
	}
	p, _ := c.LedgerPolicy()
	if p.Location.String() != "Europe/Berlin" {
		t.Errorf("location = %s", p.Location)
	}
}

func TestLoadFromRejectsBadLedgerSettings(t *testing.T) {
	t.Setenv("LEDGER_TIMEZONE", "Mars/Olympus")
	if _, err := LoadFrom(""); err == nil {
		t.Fatal("unknown timezone accepted")
	}
	t.Setenv("LEDGER_TIMEZONE", "UTC")
	t.Setenv("MAX_STREAK_MULTIPLIER", "lots")
	if _, err := LoadFrom(""); err == nil {
		t.Fatal("bad multiplier accepted")
	}
}

func TestNormalizeList(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{nil, []string{}},
		{[]string{"*"}, []string{"*"}},
		{[]string{"https://a.example, https://b.example"}, []string{"https://a.example", "https://b.example"}},
		{[]string{"https://a.example", " https://b.example "}, []string{"https://a.example", "https://b.example"}},
		{[]string{"https://a.example,", " "}, []string{"https://a.example"}},
	}
	for _, tc := range cases {
		got := normalizeList(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("normalizeList(%q) = %q, want %q", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("normalizeList(%q) = %q, want %q", tc.in, got, tc.want)
				break
			}
		}
	}
}
