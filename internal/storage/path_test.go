package storage

import "testing"

func TestCleanFolder(t *testing.T) {
	cases := map[string]string{
		``:            `\`,
		`\`:           `\`,
		`\\\`:         `\`,
		`\a\\b\`:      `\a\b`,
		`a\b`:         `\a\b`,
		`\cabinets\\`: `\cabinets`,
	}
	for in, want := range cases {
		got, err := CleanFolder(in)
		if err != nil {
			t.Errorf("CleanFolder(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("CleanFolder(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanFile(t *testing.T) {
	cases := map[string]string{
		`\store.sumi`:      `\store.sumi`,
		`store.sumi`:       `\store.sumi`,
		`\\a\\\store.sumi`: `\a\store.sumi`,
	}
	for in, want := range cases {
		got, err := CleanFile(in)
		if err != nil || got != want {
			t.Errorf("CleanFile(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{``, `\`, `\a\`, `\a\..\b`, `\a/b`} {
		if _, err := CleanFile(bad); err == nil {
			t.Errorf("CleanFile(%q) should fail", bad)
		}
	}
}

func TestSplitAndDisplayName(t *testing.T) {
	dir, name := Split(`\a\b\store.sumi`)
	if dir != `\a\b` || name != "store.sumi" {
		t.Errorf("Split = %q, %q", dir, name)
	}
	dir, name = Split(`\store.sumi`)
	if dir != `\` || name != "store.sumi" {
		t.Errorf("Split root = %q, %q", dir, name)
	}
	if got := DisplayName(`\a\My Cards.sumi`); got != "My Cards" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := Join(`\`, "x"); got != `\x` {
		t.Errorf("Join root = %q", got)
	}
	if got := Join(`\a`, "x"); got != `\a\x` {
		t.Errorf("Join = %q", got)
	}
}
