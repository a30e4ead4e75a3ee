package core

import "testing"

func TestRuleFilterEmptyExcludesNothing(t *testing.T) {
	f, err := NewRuleFilter(nil)
	if err != nil {
		t.Fatalf("NewRuleFilter: %v", err)
	}

	if !f.Visible("anything/at/all.txt") {
		t.Fatalf("empty filter should make everything visible")
	}
}

func TestRuleFilterExcludesMatches(t *testing.T) {
	f, err := NewRuleFilter([]string{`\.log$`, `^cache/`})
	if err != nil {
		t.Fatalf("NewRuleFilter: %v", err)
	}

	cases := map[string]bool{
		"server.log":       false,
		"cache/tmp.dat":    false,
		"mods/a.jar":       true,
		"logs/changes.txt": true,
	}

	for path, want := range cases {
		if got := f.Visible(path); got != want {
			t.Errorf("Visible(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestRuleFilterInvalidPattern(t *testing.T) {
	if _, err := NewRuleFilter([]string{"("}); err == nil {
		t.Fatalf("expected invalid regex to fail compilation")
	}
}
