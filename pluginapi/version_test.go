package pluginapi

import "testing"

func TestCompatibleVersion(t *testing.T) {
	cases := []struct {
		version string
		want    bool
	}{
		{"0.1.0", true},
		{"0.1.5", true},
		{"0.2.0", false},
		{"1.0.0", false},
	}

	for _, c := range cases {
		got, err := CompatibleVersion(c.version)
		if err != nil {
			t.Fatalf("CompatibleVersion(%q): %v", c.version, err)
		}
		if got != c.want {
			t.Errorf("CompatibleVersion(%q) = %v, want %v", c.version, got, c.want)
		}
	}
}

func TestCompatibleVersionRejectsGarbage(t *testing.T) {
	if _, err := CompatibleVersion("not-a-version"); err == nil {
		t.Fatal("expected an error for an unparseable version")
	}
}
