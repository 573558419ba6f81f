package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), map[string]string{"event": "run.completed"}, map[string]string{"k": "v"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), nil, "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Data) != `{"k":"v"}` || string(msgs[1].Data) != `"payload"` {
		t.Fatalf("payloads not recorded correctly: %+v", msgs)
	}
	if msgs[0].Attributes["event"] != "run.completed" {
		t.Fatalf("attributes not recorded: %+v", msgs[0].Attributes)
	}

	msgs[0].Data = nil
	if pub.Messages()[0].Data == nil {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	if _, err := New().Publish(context.Background(), nil, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
