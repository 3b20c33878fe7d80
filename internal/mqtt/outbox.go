package mqtt

import "log"

// outboxEntry is one serialized relay event waiting for the broker link.
type outboxEntry struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds events published during a broker outage for delivery on
// reconnect. Capacity is fixed; when full the oldest entry is
// overwritten, keeping the most recent relay history. Not safe for
// concurrent use — the publisher serializes access.
type outbox struct {
	entries  []outboxEntry
	capacity int
	next     int // slot the next add writes to
	queued   int
	dropping bool // an entry was lost since the last flush
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		entries:  make([]outboxEntry, capacity),
		capacity: capacity,
	}
}

func (o *outbox) add(e outboxEntry) {
	if o.queued == o.capacity {
		// next points at the oldest entry when full.
		if !o.dropping {
			log.Printf("mqtt: outbox full (%d events), overwriting oldest", o.capacity)
			o.dropping = true
		}
	} else {
		o.queued++
	}
	o.entries[o.next] = e
	o.next = (o.next + 1) % o.capacity
}

// flush empties the outbox and returns its entries oldest first.
func (o *outbox) flush() []outboxEntry {
	if o.queued == 0 {
		return nil
	}

	out := make([]outboxEntry, o.queued)
	oldest := (o.next - o.queued + o.capacity) % o.capacity
	for i := range out {
		out[i] = o.entries[(oldest+i)%o.capacity]
	}

	o.queued = 0
	o.next = 0
	o.dropping = false
	return out
}

func (o *outbox) size() int {
	return o.queued
}
