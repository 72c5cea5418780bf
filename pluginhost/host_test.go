package pluginhost

import (
	"context"
	"encoding/json"
	"testing"
)

// fakePlugin is a tiny /bin/sh script acting as a plugin: it reads the Init
// line (ignored) and prints a valid Init response, then forwards one Inner
// message before exiting.
const fakePluginScript = `#!/bin/sh
read _line
echo '{"kind":"init","plugin_version":"0.1.0","protocol_version_valid":true}'
echo '{"kind":"inner","inner":{"hello":"world"}}'
`

func writeFakePlugin(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/fake-plugin.sh"
	if err := writeExecutable(path, fakePluginScript); err != nil {
		t.Fatalf("writeExecutable: %v", err)
	}
	return path
}

func TestLoadCompletesInitHandshake(t *testing.T) {
	path := writeFakePlugin(t)

	p, err := Load(context.Background(), path, "1.0.0", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer p.Close()

	if p.PluginVersion != "0.1.0" {
		t.Errorf("PluginVersion = %q, want 0.1.0", p.PluginVersion)
	}

	select {
	case inner := <-p.Inner:
		var payload map[string]string
		if err := json.Unmarshal(inner, &payload); err != nil {
			t.Fatalf("Unmarshal inner: %v", err)
		}
		if payload["hello"] != "world" {
			t.Errorf("inner payload = %v, want hello=world", payload)
		}
	case <-context.Background().Done():
		t.Fatal("unreachable")
	}
}

const incompatiblePluginScript = `#!/bin/sh
read _line
echo '{"kind":"init","plugin_version":"9.0.0","protocol_version_valid":false}'
`

func TestLoadRejectsIncompatibleProtocol(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/incompatible-plugin.sh"
	if err := writeExecutable(path, incompatiblePluginScript); err != nil {
		t.Fatalf("writeExecutable: %v", err)
	}

	_, err := Load(context.Background(), path, "1.0.0", json.RawMessage(`{}`))
	if err != ErrIncompatibleProtocol {
		t.Fatalf("Load() error = %v, want ErrIncompatibleProtocol", err)
	}
}
