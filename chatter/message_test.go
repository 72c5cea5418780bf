package chatter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		Hello(GeneralConfigSnapshot{ClusterName: "hive", TaskNames: []string{"build", "lint"}}, 3, []string{"a", "b"}, "secret"),
		Ping(42),
		Pong(42),
		QueueUpdate(7),
		NodeConfigUpdate(9),
		TaskDispatch("job-1", "build", []json.RawMessage{json.RawMessage(`{"x":1}`)}),
		TaskResult("job-1", errors.New("boom"), json.RawMessage(`{"ok":false}`)),
	}

	for _, want := range cases {
		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%v): %v", want.Kind, err)
		}

		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%v): %v", want.Kind, err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch for %s (-want +got):\n%s", want.Kind, diff)
		}
	}
}

func TestDecodeGarbageIsError(t *testing.T) {
	if _, err := Decode([]byte("not a gob stream")); err == nil {
		t.Fatal("expected an error decoding garbage input")
	}
}

func TestKindString(t *testing.T) {
	if got := KindHello.String(); got != "Hello" {
		t.Errorf("KindHello.String() = %q, want Hello", got)
	}
}

func TestGeneralConfigSnapshotEqual(t *testing.T) {
	a := GeneralConfigSnapshot{ClusterName: "hive", TaskNames: []string{"build", "lint"}}
	b := GeneralConfigSnapshot{ClusterName: "hive", TaskNames: []string{"build", "lint"}}
	if !a.Equal(b) {
		t.Error("expected identical snapshots to be Equal")
	}

	diffName := GeneralConfigSnapshot{ClusterName: "swarm", TaskNames: []string{"build", "lint"}}
	if a.Equal(diffName) {
		t.Error("expected different ClusterName to be unequal")
	}

	diffTasks := GeneralConfigSnapshot{ClusterName: "hive", TaskNames: []string{"build"}}
	if a.Equal(diffTasks) {
		t.Error("expected different TaskNames to be unequal")
	}
}
