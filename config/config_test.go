package config

import "testing"

func TestNewDefaultNodeConfig(t *testing.T) {
	c := NewDefaultNodeConfig()

	if c.InboundAddr != ":7020" {
		t.Errorf("InboundAddr = %q, want :7020", c.InboundAddr)
	}
	if c.MaxMessageSize != 1<<20 {
		t.Errorf("MaxMessageSize = %d, want %d", c.MaxMessageSize, 1<<20)
	}
}

func TestDiffDetectsAddedAndRemovedTasks(t *testing.T) {
	old := GeneralConfig{
		ClusterName: "hive",
		Tasks: map[string]TaskInfo{
			"build": {},
			"lint":  {},
		},
	}
	next := GeneralConfig{
		ClusterName: "hive",
		Tasks: map[string]TaskInfo{
			"build": {},
			"test":  {},
		},
	}

	changed, nameChanged, added, removed := Diff(old, next)

	if !changed {
		t.Fatal("expected changed = true")
	}
	if nameChanged {
		t.Error("expected cluster name unchanged")
	}
	if len(added) != 1 || added[0] != "test" {
		t.Errorf("added = %v, want [test]", added)
	}
	if len(removed) != 1 || removed[0] != "lint" {
		t.Errorf("removed = %v, want [lint]", removed)
	}
}

func TestDiffNoChange(t *testing.T) {
	cfg := GeneralConfig{ClusterName: "hive", Tasks: map[string]TaskInfo{"build": {}}}

	changed, _, added, removed := Diff(cfg, cfg)
	if changed || len(added) != 0 || len(removed) != 0 {
		t.Errorf("expected no diff, got changed=%v added=%v removed=%v", changed, added, removed)
	}
}

func TestGeneralConfigTaskNames(t *testing.T) {
	cfg := GeneralConfig{Tasks: map[string]TaskInfo{"a": {}, "b": {}}}
	names := cfg.TaskNames()
	if len(names) != 2 {
		t.Fatalf("TaskNames() = %v, want 2 entries", names)
	}
}
