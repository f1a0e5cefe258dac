package redis

import "strconv"

const (
	keyspacePrefix = "__keyspace@0__:"
	keyeventPrefix = "__keyevent@0__:"
	timerPrefix    = "__timer@0__:"
)

// notificationEvents is the set of known keyevent notification names;
// anything else subscribed by plain name is assumed to be a key and
// routed through the keyspace form instead.
var notificationEvents = map[string]bool{
	"append": true, "del": true, "expire": true, "evicted": true,
	"incrby": true, "incrbyfloat": true, "hdel": true, "hincrby": true,
	"hincrbyfloat": true, "hset": true, "linsert": true, "lpop": true,
	"lpush": true, "lset": true, "ltrim": true, "rename_from": true,
	"rename_to": true, "rpop": true, "rpush": true, "sadd": true,
	"sdiffstore": true, "set": true, "setrange": true, "sinterstore": true,
	"sortstore": true, "spop": true, "srem": true, "sunionostore": true,
	"zadd": true, "zincr": true, "zinterstore": true, "zrem": true,
	"zrembyrank": true, "zrembyscore": true, "zunionstore": true,
}

// rewriteName classifies and rewrites one Subscribe argument and
// returns the channel that should be attached to the record. For a
// name channel, key.name is the wire name to send; a timer channel
// (flagTimer set) never touches the wire.
func rewriteName(arg string) SubscriptionChannel {
	if n, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return SubscriptionChannel{key: timeKey(n), flags: flagTimer}
	}

	switch {
	case hasAnyPrefix(arg, keyspacePrefix, keyeventPrefix, timerPrefix):
		return SubscriptionChannel{key: nameKey(arg), flags: flagKeyspace}
	case notificationEvents[arg]:
		return SubscriptionChannel{key: nameKey(keyeventPrefix + arg), flags: flagKeyevent}
	default:
		return SubscriptionChannel{key: nameKey(keyspacePrefix + arg), flags: flagKeyspace}
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

// stripNotificationPrefix removes a leading keyspace/keyevent prefix
// from a top-level string element of a delivered reply, leaving
// everything else untouched.
func stripNotificationPrefix(s string) string {
	switch {
	case len(s) >= len(keyspacePrefix) && s[:len(keyspacePrefix)] == keyspacePrefix:
		return s[len(keyspacePrefix):]
	case len(s) >= len(keyeventPrefix) && s[:len(keyeventPrefix)] == keyeventPrefix:
		return s[len(keyeventPrefix):]
	default:
		return s
	}
}

// rewriteDelivery prepares a subscription-transport Array reply for
// delivery to a user handler: the leading kind tag (element 0, e.g.
// "message") is dropped, and any remaining top-level string elements
// have their keyspace/keyevent prefix stripped.
func rewriteDelivery(reply Reply) Reply {
	if reply.Type != TypeArray || len(reply.Array) == 0 {
		return reply
	}
	rest := reply.Array[1:]
	out := make([]Reply, len(rest))
	for i, e := range rest {
		if e.Type == TypeString || e.Type == TypeStatus {
			out[i] = Reply{Type: e.Type, Bytes: []byte(stripNotificationPrefix(string(e.Bytes)))}
		} else {
			out[i] = e
		}
	}
	return Reply{Type: TypeArray, Array: out}
}
