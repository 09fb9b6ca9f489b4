package notify

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanout_PublishRecordsEnvelope(t *testing.T) {
	t.Parallel()

	transport := NewMemoryTransport()
	f := NewFanout(discardLogger(), transport)

	f.Publish("alice@example.com", EventConversationNew, map[string]string{"id": "c1"})
	f.Publish("c1", EventMessageNew, map[string]string{"id": "m1"})
	f.Wait()

	got := transport.Published()
	if len(got) != 2 {
		t.Fatalf("published=%d want=2", len(got))
	}

	personal := transport.PublishedTo("alice@example.com")
	if len(personal) != 1 || personal[0].Event != EventConversationNew {
		t.Fatalf("personal channel: %+v", personal)
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(personal[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ID != "c1" {
		t.Fatalf("payload.ID=%q want=c1", payload.ID)
	}
}

func TestFanout_TransportFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	transport := NewMemoryTransport()
	transport.FailWith(errors.New("broker down"))
	f := NewFanout(discardLogger(), transport, WithPublishTimeout(time.Second))

	// Must not panic, block, or surface the error.
	f.Publish("c1", EventMessageNew, map[string]string{"id": "m1"})
	f.Wait()

	if got := transport.Published(); len(got) != 0 {
		t.Fatalf("published=%d want=0", len(got))
	}

	// Recovered transport records again.
	transport.FailWith(nil)
	f.Publish("c1", EventMessageNew, map[string]string{"id": "m2"})
	f.Wait()
	if got := transport.Published(); len(got) != 1 {
		t.Fatalf("published=%d want=1 after recovery", len(got))
	}
}

func TestFanout_EncodeFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	transport := NewMemoryTransport()
	f := NewFanout(discardLogger(), transport)

	// Channels are not JSON-encodable; Publish must drop the event silently.
	f.Publish("c1", EventMessageNew, make(chan int))
	f.Wait()

	if got := transport.Published(); len(got) != 0 {
		t.Fatalf("published=%d want=0", len(got))
	}
}

func TestFanout_IgnoresEmptyChannelOrEvent(t *testing.T) {
	t.Parallel()

	transport := NewMemoryTransport()
	f := NewFanout(discardLogger(), transport)

	f.Publish("", EventMessageNew, "x")
	f.Publish("c1", "", "x")
	f.Wait()

	if got := transport.Published(); len(got) != 0 {
		t.Fatalf("published=%d want=0", len(got))
	}
}
