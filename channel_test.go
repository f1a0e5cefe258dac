package redis

import "testing"

func TestSubscriptionRecordCheckInitialized(t *testing.T) {
	rec := newRecord(nil, []SubscriptionChannel{
		{key: nameKey("a")},
		{key: nameKey("b")},
	})

	if rec.checkInitialized() {
		t.Fatal("got initialized with no channels subscribed")
	}

	rec.channels[0].flags |= flagSubscribed
	if rec.checkInitialized() {
		t.Fatal("got initialized with only one of two channels subscribed")
	}

	rec.channels[1].flags |= flagSubscribed
	if !rec.checkInitialized() {
		t.Fatal("want initialized once every channel is subscribed")
	}
	if !rec.initialized {
		t.Fatal("initialized flag not set")
	}

	// A second call must not re-fire.
	if rec.checkInitialized() {
		t.Fatal("checkInitialized fired a second time")
	}
}

func TestDegenerateRecord(t *testing.T) {
	rec := newRecord(nil, nil)
	if !rec.degenerate() {
		t.Fatal("want degenerate record for a channel-less record")
	}

	rec2 := newRecord(nil, []SubscriptionChannel{{key: nameKey("a")}})
	if rec2.degenerate() {
		t.Fatal("want non-degenerate record when channels are present")
	}
}
