package redis

// channelFlag tags the role a SubscriptionChannel plays within its
// record.
type channelFlag uint8

const (
	flagSubscribed channelFlag = 1 << iota
	flagKeyspace
	flagKeyevent
	flagTimer
)

// ChannelKey identifies one entry of a Registry: either an opaque
// channel/pattern name, or a timer period in milliseconds. The two
// forms live in disjoint registries and are never compared against
// each other.
type ChannelKey struct {
	name   string
	period uint64
	isTime bool
}

func nameKey(name string) ChannelKey  { return ChannelKey{name: name} }
func timeKey(period uint64) ChannelKey { return ChannelKey{period: period, isTime: true} }

// SubscriptionChannel is one wire (or virtual timer) channel belonging
// to a SubscriptionRecord.
type SubscriptionChannel struct {
	key   ChannelKey
	flags channelFlag
}

func (c *SubscriptionChannel) subscribed() bool { return c.flags&flagSubscribed != 0 }
func (c *SubscriptionChannel) timer() bool      { return c.flags&flagTimer != 0 }

// Handler receives command replies and subscription events. err is
// non-nil exactly when the reply carries an Error, when a write
// failed, when the client reports a usage/connection problem, or when
// an event reaches a subscription that is not yet initialized; in
// those cases reply is the zero Reply.
type Handler func(err error, reply Reply)

// SubscriptionRecord groups one or more channels registered together
// by a single Subscribe or Command call. It becomes initialized once
// every one of its channels has been acknowledged (or, for timer
// channels, started), at which point pub/sub and timer events start
// reaching handler.
type SubscriptionRecord struct {
	handler     Handler
	channels    []SubscriptionChannel
	initialized bool

	// attachCount is the number of registry/command-queue slots
	// referencing this record. The record is dropped once it reaches
	// zero.
	attachCount int
}

func newRecord(handler Handler, channels []SubscriptionChannel) *SubscriptionRecord {
	return &SubscriptionRecord{handler: handler, channels: channels}
}

// degenerate reports whether this record carries no channels, i.e. it
// represents a plain command awaiting its one reply on the command
// queue rather than a subscription.
func (rec *SubscriptionRecord) degenerate() bool { return len(rec.channels) == 0 }

// checkInitialized marks the record initialized once every channel is
// subscribed, and returns whether this call is the one that flipped
// it.
func (rec *SubscriptionRecord) checkInitialized() bool {
	if rec.initialized {
		return false
	}
	for i := range rec.channels {
		if !rec.channels[i].subscribed() {
			return false
		}
	}
	rec.initialized = true
	return true
}
