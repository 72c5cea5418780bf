package pluginrt

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ThePerkinrex/gilbert/pluginapi"
)

func initRequestLine(t *testing.T, protocolVersion string) string {
	t.Helper()
	req := pluginapi.NewInitRequest("1.0.0", json.RawMessage(`{"x":1}`))
	req.ProtocolVersion = protocolVersion

	line, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return string(line) + "\n"
}

func TestInitAcceptsCompatibleVersion(t *testing.T) {
	in := strings.NewReader(initRequestLine(t, "0.1.0"))
	var out bytes.Buffer

	rt, _, config, err := Init(in, &out, "0.1.0")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Shutdown waits for the printer to flush the Init response to out.
	rt.Shutdown()

	if string(config) != `{"x":1}` {
		t.Errorf("config = %s, want {\"x\":1}", config)
	}

	scanner := bufio.NewScanner(&out)
	if !scanner.Scan() {
		t.Fatal("expected an init response line")
	}

	var resp pluginapi.GeneralPluginResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Kind != pluginapi.ResponseInit || !resp.ProtocolVersionValid {
		t.Errorf("got %+v, want valid init response", resp)
	}
}

func TestInitRejectsIncompatibleVersion(t *testing.T) {
	in := strings.NewReader(initRequestLine(t, "9.9.9"))
	var out bytes.Buffer

	rt, _, _, err := Init(in, &out, "0.1.0")
	if err == nil {
		t.Fatal("expected an error for incompatible protocol version")
	}
	rt.Shutdown()

	scanner := bufio.NewScanner(&out)
	scanner.Scan()
	var resp pluginapi.GeneralPluginResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.ProtocolVersionValid {
		t.Error("expected the response to report protocol_version_valid=false")
	}
}

func TestRuntimeDropsEnqueueAfterShutdown(t *testing.T) {
	var out bytes.Buffer
	rt := newRuntime(&out, "0.1.0")

	rt.Shutdown()
	rt.LogResponse(pluginapi.LogMessage{Level: pluginapi.LevelInfo})

	if out.Len() != 0 {
		t.Errorf("expected no output after shutdown, got %q", out.String())
	}
}

func TestVisitFieldPassesThroughPrimitives(t *testing.T) {
	if got := visitField(42); got != 42 {
		t.Errorf("visitField(42) = %v, want 42", got)
	}
	if got := visitField("x"); got != "x" {
		t.Errorf("visitField(\"x\") = %v, want x", got)
	}
}

type customStruct struct{ A int }

func TestVisitFieldFormatsOther(t *testing.T) {
	got := visitField(customStruct{A: 1})
	if got != "{A:1}" {
		t.Errorf("visitField(customStruct{1}) = %v, want {A:1}", got)
	}
}
