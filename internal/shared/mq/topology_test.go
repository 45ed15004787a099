package mq

import (
	"strings"
	"testing"
)

// topicMatch covers the single-word "*" wildcard used by ChangesBinding.
func topicMatch(pattern, key string) bool {
	pw, kw := strings.Split(pattern, "."), strings.Split(key, ".")
	if len(pw) != len(kw) {
		return false
	}
	for i := range pw {
		if pw[i] != "*" && pw[i] != kw[i] {
			return false
		}
	}
	return true
}

func TestChangesBindingMatchesLifecycleKeys(t *testing.T) {
	for _, k := range []string{"request.created", "request.accepted", "request.completed", "request.cancelled", "request.rated"} {
		if !topicMatch(ChangesBinding, k) {
			t.Errorf("key %s not matched by %s", k, ChangesBinding)
		}
	}
	if topicMatch(ChangesBinding, "ride.requested") {
		t.Error("foreign key matched")
	}

	bindings := Topology()
	if len(bindings) != 1 || bindings[0].Queue != ChangesQueue {
		t.Fatalf("bindings = %+v", bindings)
	}
}
