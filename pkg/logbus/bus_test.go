package logbus

import (
	"testing"

	"github.com/google/uuid"
)

func TestTrySendOrDropFitsWithinCapacity(t *testing.T) {
	ch := make(chan LogEvent, 2)
	var dropped int64

	trySendOrDrop(ch, LogEvent{ID: 1}, &dropped)
	trySendOrDrop(ch, LogEvent{ID: 2}, &dropped)

	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if len(ch) != 2 {
		t.Fatalf("channel length = %d, want 2", len(ch))
	}
}

func TestTrySendOrDropEvictsOldestWhenFull(t *testing.T) {
	ch := make(chan LogEvent, 2)
	var dropped int64

	trySendOrDrop(ch, LogEvent{ID: 1}, &dropped)
	trySendOrDrop(ch, LogEvent{ID: 2}, &dropped)
	trySendOrDrop(ch, LogEvent{ID: 3}, &dropped)

	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	first := <-ch
	second := <-ch
	if first.ID != 2 || second.ID != 3 {
		t.Fatalf("got IDs %d, %d; want 2, 3 (oldest evicted)", first.ID, second.ID)
	}
}

func TestPublishToSubscriberInsertsGapMarkerAfterDrop(t *testing.T) {
	ch := make(chan LogEvent, 1)
	var dropped int64
	deploymentID := uuid.New()

	publishToSubscriber(ch, LogEvent{ID: 1, DeploymentID: deploymentID}, &dropped)
	// Buffer is now full (cap 1). The next publish must evict the first
	// event before it can deliver anything.
	publishToSubscriber(ch, LogEvent{ID: 2, DeploymentID: deploymentID}, &dropped)

	got := <-ch
	if got.Metadata["kind"] != "gap" {
		t.Fatalf("expected a gap marker after an eviction, got %+v", got)
	}
}

func TestMetadataCodecRoundTrip(t *testing.T) {
	original := map[string]any{"exit_code": float64(1), "step": "build"}

	encoded := metadataJSON(original)
	decoded := decodeMetadata(encoded)

	if decoded["step"] != "build" {
		t.Fatalf("decoded metadata = %+v", decoded)
	}
}

func TestMetadataCodecNilRoundTrip(t *testing.T) {
	encoded := metadataJSON(nil)
	if string(encoded) != "{}" {
		t.Fatalf("metadataJSON(nil) = %q, want {}", encoded)
	}
	if decodeMetadata(encoded) != nil {
		t.Fatalf("decodeMetadata(empty object) should be nil, got %+v", decodeMetadata(encoded))
	}
}
