package redis

import "time"

// queueEntry pairs a pending command's continuation with the instant
// it was written to the wire, letting the dispatch path report
// write-to-reply latency.
type queueEntry struct {
	rec      *SubscriptionRecord
	issuedAt time.Time
}

// commandQueue is the in-order FIFO of pending plain-command
// continuations awaiting their reply on the command transport. Each
// entry's record is degenerate (no channels), carrying one handler.
//
// Owned exclusively by the loop goroutine.
type commandQueue struct {
	entries []queueEntry
}

func (q *commandQueue) push(rec *SubscriptionRecord, issuedAt time.Time) {
	q.entries = append(q.entries, queueEntry{rec: rec, issuedAt: issuedAt})
}

func (q *commandQueue) pop() (*SubscriptionRecord, time.Time, bool) {
	if len(q.entries) == 0 {
		return nil, time.Time{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e.rec, e.issuedAt, true
}

// drain empties the queue, returning the dropped records so the
// caller can decide whether to invoke them with an error (the
// DropQueueOnDisconnect policy).
func (q *commandQueue) drain() []*SubscriptionRecord {
	recs := make([]*SubscriptionRecord, len(q.entries))
	for i, e := range q.entries {
		recs[i] = e.rec
	}
	q.entries = nil
	return recs
}
