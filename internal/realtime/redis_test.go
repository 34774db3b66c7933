package realtime

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRedisBridgeHandlePayload(t *testing.T) {
	b := NewBroker(slog.Default())
	rb := NewRedisBridge(nil, b, slog.Default())
	sub := b.Subscribe()
	defer sub.Close()

	remote := NewEvent(EntityHouse, "updated", "slytherin", nil)
	remote.Origin = "other-instance"
	data, _ := json.Marshal(remote)
	rb.handlePayload(string(data))

	own := NewEvent(EntityHouse, "updated", "gryffindor", nil)
	own.Origin = rb.instanceID
	data, _ = json.Marshal(own)
	rb.handlePayload(string(data))

	rb.handlePayload("not json")

	if got := len(sub.Events()); got != 1 {
		t.Fatalf("delivered %d events, want 1", got)
	}
	if e := <-sub.Events(); e.ID != "slytherin" {
		t.Errorf("id = %q, want slytherin", e.ID)
	}
}

func TestRedisBridgeEnqueueSkipsRemote(t *testing.T) {
	rb := NewRedisBridge(nil, NewBroker(slog.Default()), slog.Default())

	rb.enqueue(NewEvent(EntityUser, "updated", "u1", nil))
	remote := NewEvent(EntityUser, "updated", "u2", nil)
	remote.Origin = "elsewhere"
	rb.enqueue(remote)

	if got := len(rb.outbox); got != 1 {
		t.Errorf("outbox = %d, want 1", got)
	}
}
