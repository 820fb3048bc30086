package admit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRulesMatch(t *testing.T) {
	rules := Rules{{MustContain: []string{"yaniv", "fathom"}}, {MustContain: []string{"notetaker"}}}
	tests := []struct {
		name string
		want bool
	}{
		{"Yaniv's Fathom Notetaker", true},
		{"YANIV FATHOM", true},
		{"Fathom", false},
		{"yaniv", false},
		{"Otter Notetaker", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.Match(tt.name); got != tt.want {
				t.Fatalf("Match(%q) = %v; want %v", tt.name, got, tt.want)
			}
		})
	}
	if (Rules{{}}).Match("anyone") {
		t.Fatal("empty rule should match nothing")
	}
}

func TestParseRulesNormalizes(t *testing.T) {
	doc := []byte(`
rules:
  - must_contain: [" Yaniv ", "FATHOM", ""]
  - must_contain: ["  "]
  - must_contain: []
`)
	got, err := ParseRules(doc)
	if err != nil {
		t.Fatalf("ParseRules() = %v", err)
	}
	want := Rules{{MustContain: []string{"yaniv", "fathom"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseRules([]byte("rules: [")); err == nil {
		t.Fatal("ParseRules(bad yaml) = nil; want error")
	}
}

func TestLoadRulesMissingFileDisables(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil || rules != nil {
		t.Fatalf("LoadRules(missing) = %v, %v; want nil, nil", rules, err)
	}

	path := filepath.Join(t.TempDir(), "admit.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - must_contain: [bot]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err = LoadRules(path)
	if err != nil || !rules.Match("Meeting Bot") {
		t.Fatalf("LoadRules() = %v, %v", rules, err)
	}
}
