package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/ThePerkinrex/gilbert/config"
	"github.com/ThePerkinrex/gilbert/mesh"
)

func TestHandleJobsListsTaskNames(t *testing.T) {
	general := func() config.GeneralConfig {
		return config.GeneralConfig{Tasks: map[string]config.TaskInfo{"build": {}, "lint": {}}}
	}

	s := NewServer(mesh.NewNodeManager(), nil, general, mesh.NoopEventHandlers{}, 0, "")

	req := httptest.NewRequest("GET", "/api/jobs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sort.Strings(names)

	if len(names) != 2 || names[0] != "build" || names[1] != "lint" {
		t.Errorf("names = %v, want [build lint]", names)
	}
}

func TestHandleNodesReportsSnapshot(t *testing.T) {
	manager := mesh.NewNodeManager()
	manager.Down("peer-a")

	s := NewServer(manager, nil, func() config.GeneralConfig { return config.GeneralConfig{} }, mesh.NoopEventHandlers{}, 0, "")

	req := httptest.NewRequest("GET", "/api/nodes", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if out["peer-a"] != "disconnected" {
		t.Errorf("peer-a = %q, want disconnected", out["peer-a"])
	}
}

func TestHandleJobDetailReservedReturnsNotImplemented(t *testing.T) {
	s := NewServer(mesh.NewNodeManager(), nil, func() config.GeneralConfig { return config.GeneralConfig{} }, mesh.NoopEventHandlers{}, 0, "")

	req := httptest.NewRequest("GET", "/api/jobs/build", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 501 {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
