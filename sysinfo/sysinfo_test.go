package sysinfo

import "testing"

func TestCollectReportsOS(t *testing.T) {
	s := Collect()
	if s.OS == "" {
		t.Error("expected a non-empty OS field")
	}
}
