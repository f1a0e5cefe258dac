package redis

// registryNode is one key's FIFO of subscription slots, plus the
// timer handle (if any) started for that key. Only timer registries
// ever populate stop.
type registryNode struct {
	slots []*SubscriptionRecord
	stop  func()
}

// Registry is a map from ChannelKey to an ordered FIFO of
// SubscriptionRecords. The original source's BST keyed by an
// asymmetric strncmp prefix comparison is replaced here by a plain Go
// map doing full-key comparison only (keys themselves are unordered) —
// see DESIGN.md for the reasoning.
//
// A Registry is owned exclusively by the loop goroutine; it carries
// no synchronization of its own.
type Registry struct {
	byName   map[string]*registryNode
	byPeriod map[uint64]*registryNode
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]*registryNode),
		byPeriod: make(map[uint64]*registryNode),
	}
}

func (r *Registry) node(key ChannelKey) *registryNode {
	if key.isTime {
		return r.byPeriod[key.period]
	}
	return r.byName[key.name]
}

func (r *Registry) nodeOrCreate(key ChannelKey) (node *registryNode, created bool) {
	if n := r.node(key); n != nil {
		return n, false
	}
	n := &registryNode{}
	if key.isTime {
		r.byPeriod[key.period] = n
	} else {
		r.byName[key.name] = n
	}
	return n, true
}

// Insert appends rec to the FIFO for key, creating the node if
// necessary, and credits rec's attachCount. It reports whether the
// node was newly created (Client.startTimerChannel uses this to decide
// whether a ticker needs to be started for the period).
func (r *Registry) Insert(key ChannelKey, rec *SubscriptionRecord) (created bool) {
	n, created := r.nodeOrCreate(key)
	n.slots = append(n.slots, rec)
	rec.attachCount++
	return created
}

// Search returns the FIFO of records attached to key, or nil if the
// key has no node.
func (r *Registry) Search(key ChannelKey) []*SubscriptionRecord {
	n := r.node(key)
	if n == nil {
		return nil
	}
	return n.slots
}

// Shift removes and returns the head record for key, decrementing its
// attachCount. It reports ok=false when the key has no node or an
// empty FIFO. If the node's FIFO becomes empty, the node itself is
// removed (stopping its timer, if any).
func (r *Registry) Shift(key ChannelKey) (rec *SubscriptionRecord, ok bool) {
	n := r.node(key)
	if n == nil || len(n.slots) == 0 {
		return nil, false
	}
	rec = n.slots[0]
	n.slots = n.slots[1:]
	rec.attachCount--

	if len(n.slots) == 0 {
		r.remove(key, n)
	}
	return rec, true
}

// Remove drops rec from key's FIFO (wherever it sits, not just the
// head), decrementing its attachCount. Used by the opt-in unsubscribe
// path. It reports whether rec was found.
func (r *Registry) Remove(key ChannelKey, rec *SubscriptionRecord) bool {
	n := r.node(key)
	if n == nil {
		return false
	}
	for i, s := range n.slots {
		if s == rec {
			n.slots = append(n.slots[:i], n.slots[i+1:]...)
			rec.attachCount--
			if len(n.slots) == 0 {
				r.remove(key, n)
			}
			return true
		}
	}
	return false
}

func (r *Registry) remove(key ChannelKey, n *registryNode) {
	if n.stop != nil {
		n.stop()
	}
	if key.isTime {
		delete(r.byPeriod, key.period)
	} else {
		delete(r.byName, key.name)
	}
}

// SetTimerStop attaches the stop function for a newly started timer
// to key's node.
func (r *Registry) SetTimerStop(key ChannelKey, stop func()) {
	n := r.node(key)
	if n != nil {
		n.stop = stop
	}
}

// DestroyAll drains every node in the registry, decrementing
// attachCount on every referenced record and stopping every timer.
// Records that drop to zero attachCount are simply forgotten — the Go
// GC reclaims them once no slot anywhere still points at them.
func (r *Registry) DestroyAll() {
	for _, n := range r.byName {
		if n.stop != nil {
			n.stop()
		}
		for _, rec := range n.slots {
			rec.attachCount--
		}
	}
	for _, n := range r.byPeriod {
		if n.stop != nil {
			n.stop()
		}
		for _, rec := range n.slots {
			rec.attachCount--
		}
	}
	r.byName = make(map[string]*registryNode)
	r.byPeriod = make(map[uint64]*registryNode)
}
