package mqtt

import (
	"fmt"
	"testing"
)

func TestOutboxAddAndFlush(t *testing.T) {
	o := newOutbox(4)

	o.add(outboxEntry{topic: "home/relay/a/events", payload: []byte("1")})
	o.add(outboxEntry{topic: "home/relay/b/events", payload: []byte("2")})

	if o.size() != 2 {
		t.Fatalf("size: got %d, want 2", o.size())
	}

	entries := o.flush()
	if len(entries) != 2 {
		t.Fatalf("flushed %d entries, want 2", len(entries))
	}
	if string(entries[0].payload) != "1" || string(entries[1].payload) != "2" {
		t.Errorf("wrong order: %s, %s", entries[0].payload, entries[1].payload)
	}
	if o.size() != 0 {
		t.Errorf("outbox should be empty after flush, size = %d", o.size())
	}
}

func TestOutboxOverflowKeepsNewest(t *testing.T) {
	o := newOutbox(3)

	for i := 1; i <= 5; i++ {
		o.add(outboxEntry{payload: []byte(fmt.Sprintf("%d", i))})
	}

	entries := o.flush()
	if len(entries) != 3 {
		t.Fatalf("flushed %d entries, want 3", len(entries))
	}
	// 1 and 2 were overwritten; 3, 4, 5 remain in order.
	for i, want := range []string{"3", "4", "5"} {
		if string(entries[i].payload) != want {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].payload, want)
		}
	}
}

func TestOutboxFlushEmpty(t *testing.T) {
	o := newOutbox(2)
	if entries := o.flush(); entries != nil {
		t.Errorf("empty flush should return nil, got %v", entries)
	}
}

func TestOutboxReusableAfterFlush(t *testing.T) {
	o := newOutbox(2)

	o.add(outboxEntry{payload: []byte("x")})
	o.add(outboxEntry{payload: []byte("y")})
	o.add(outboxEntry{payload: []byte("z")}) // overwrites x
	o.flush()

	o.add(outboxEntry{payload: []byte("w")})
	entries := o.flush()
	if len(entries) != 1 || string(entries[0].payload) != "w" {
		t.Errorf("outbox not reusable after overflow+flush: %v", entries)
	}
}
