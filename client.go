package redis

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// clientFlag tracks the coarse client-lifecycle state combining both
// transports' sub-states, per §3's ClientContext.flags.
type clientFlag uint8

const (
	flagConnecting clientFlag = 1 << iota
	flagConnected
	flagMonitoring
	flagDisconnecting
	flagFreeing
)

// Config is the client's own configuration. Loading it from the
// environment is a concern of the embedding program (see
// cmd/redisevent), not of this package.
type Config struct {
	// Path is the filesystem path of the Unix domain socket dialed by
	// both transports.
	Path string
	// IgnoreSubAck suppresses delivering the (p)subscribe ack itself
	// to the handler; only messages/timer ticks are delivered. This
	// is the source's default behavior.
	IgnoreSubAck bool
}

// DefaultConfig returns a Config with the source's default
// IgnoreSubAck = true.
func DefaultConfig(path string) Config {
	return Config{Path: path, IgnoreSubAck: true}
}

// Client is an asynchronous Redis-compatible client. Connect, Command,
// Subscribe, Disconnect and Exit are safe to call from any goroutine:
// they merely enqueue an event for the loop goroutine, which owns all
// other state. The On* and Set* methods assign fields that the loop
// goroutine reads, without synchronization.
type Client struct {
	cfg Config

	events chan any

	cmd *connHalf
	sub *connHalf

	channels *Registry
	patterns *Registry
	timers   *Registry

	queue commandQueue
	wheel *timerWheel

	flags clientFlag

	onConnect    func()
	onError      func(error)
	onDisconnect func()

	// REDESIGN FLAGS (see DESIGN.md): both default to preserved source
	// behavior and are safe to set only before Connect.
	EnableUnsubscribe     bool
	DropQueueOnDisconnect bool

	logger  zerolog.Logger
	metrics *Metrics

	// everConnected distinguishes the first successful handshake from a
	// later one following teardown, so metrics can tell an initial
	// connect from a reconnect.
	everConnected bool

	once   sync.Once
	closed chan struct{}
}

// NewClient constructs a Client bound to cfg. Call Connect to begin
// dialing.
func NewClient(cfg Config) *Client {
	events := make(chan any, 1024)
	c := &Client{
		cfg:                   cfg,
		events:                events,
		channels:              NewRegistry(),
		patterns:              NewRegistry(),
		timers:                NewRegistry(),
		wheel:                 newTimerWheel(),
		DropQueueOnDisconnect: true,
		logger:                nopLogger,
		closed:                make(chan struct{}),
	}
	c.cmd = newConnHalf(cmdTransport, cfg.Path, events)
	c.sub = newConnHalf(subTransport, cfg.Path, events)
	go c.loop()
	go c.forwardTicks()
	return c
}

// forwardTicks fans every timer tick into the loop goroutine's single
// events channel, keeping the timer wheel's own channel private to
// timer.go while still letting the loop goroutine be the only reader
// of dispatch-core-affecting events.
func (c *Client) forwardTicks() {
	for {
		select {
		case t := <-c.wheel.ticks:
			select {
			case c.events <- t:
			case <-c.closed:
				return
			}
		case <-c.closed:
			return
		}
	}
}

// SetLogger wires a structured logger; the zero value keeps the
// client silent.
func (c *Client) SetLogger(l zerolog.Logger) *Client { c.logger = l; return c }

// SetMetrics wires Prometheus instrumentation; nil disables it.
func (c *Client) SetMetrics(m *Metrics) *Client { c.metrics = m; return c }

// SetCommandRateLimit installs an opt-in outbound rate limit on the
// command transport's write path. It has no effect on the
// subscription transport or on reply dispatch.
func (c *Client) SetCommandRateLimit(lim *rate.Limiter) *Client {
	c.cmd.limiter = lim
	return c
}

// OnConnect registers the handler invoked once both transports reach
// Connected.
func (c *Client) OnConnect(h func()) *Client { c.onConnect = h; return c }

// OnError registers the handler invoked on transport-level protocol,
// I/O, or dial errors.
func (c *Client) OnError(h func(error)) *Client { c.onError = h; return c }

// OnDisconnect registers the handler invoked once both transports
// have fully closed.
func (c *Client) OnDisconnect(h func()) *Client { c.onDisconnect = h; return c }

// Done returns a channel closed once Exit has finished releasing all
// resources.
func (c *Client) Done() <-chan struct{} { return c.closed }

// isClosed reports whether Exit has already run, without blocking.
func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Connect dials both transports. on_connect fires once both
// complete.
func (c *Client) Connect() *Client {
	c.events <- evtConnectRequest{}
	return c
}

// Command issues a command built from tokens, delivering its one
// reply (or error) to handler. tokens may be strings, []byte,
// integers, or slices thereof (expanded in place). A token of the
// form "__timer@0__:<n>" is stripped from the wire request and
// attached as a local timer channel on the command's record.
func (c *Client) Command(handler Handler, tokens ...any) error {
	if c.isClosed() {
		return ErrClosed
	}
	argv, err := flattenArgs(tokens)
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return fmt.Errorf("redis: command requires at least a name token")
	}
	if len(argv)-1 > maxStackArgs {
		return errStackOverflow
	}

	wire, channels := extractTimerTokens(argv)
	rec := newRecord(handler, channels)
	monitor := len(wire) > 0 && strings.EqualFold(string(wire[0]), "monitor")

	c.events <- evtCommand{argv: wire, rec: rec, monitor: monitor}
	return nil
}

// Subscribe rewrites names through the Name Rewriter (§4.7 of the
// design) and forwards the result as a "subscribe" Command. A name
// that parses as an unsigned integer is treated as a local timer
// period in milliseconds rather than a server channel.
func (c *Client) Subscribe(handler Handler, names ...any) error {
	if c.isClosed() {
		return ErrClosed
	}
	flat, err := flattenArgs(names)
	if err != nil {
		return err
	}

	channels := make([]SubscriptionChannel, 0, len(flat))
	wireNames := make([][]byte, 0, len(flat))
	for _, n := range flat {
		ch := rewriteName(string(n))
		channels = append(channels, ch)
		if !ch.timer() {
			wireNames = append(wireNames, []byte(ch.key.name))
		}
	}

	var argv [][]byte
	if len(wireNames) > 0 {
		argv = make([][]byte, 0, 1+len(wireNames))
		argv = append(argv, []byte("subscribe"))
		argv = append(argv, wireNames...)
	}

	rec := newRecord(handler, channels)
	c.events <- evtCommand{argv: argv, rec: rec}
	return nil
}

// Disconnect closes both transports, drops or notifies queued
// commands per DropQueueOnDisconnect, destroys all registries
// (stopping every timer), and fires on_disconnect.
func (c *Client) Disconnect() *Client {
	c.events <- evtDisconnect{}
	return c
}

// Exit releases all resources unconditionally and stops the loop
// goroutine. The Client is unusable afterward.
func (c *Client) Exit() {
	c.once.Do(func() {
		done := make(chan struct{})
		c.events <- evtExit{done: done}
		<-done
	})
}

// evtConnectRequest, evtDisconnect and evtExit are the public-API
// driven events; evtCommand carries a fully resolved command or
// subscription ready for registry/queue bookkeeping.
type (
	evtConnectRequest struct{}
	evtDisconnect     struct{}
	evtExit           struct{ done chan struct{} }
	evtCommand        struct {
		argv    [][]byte
		rec     *SubscriptionRecord
		monitor bool
	}
)

func (c *Client) half(kind transport) *connHalf {
	if kind == subTransport {
		return c.sub
	}
	return c.cmd
}

func (c *Client) isConnected() bool { return c.flags&flagConnected != 0 }

// invoke calls rec's handler, recovering any panic at this dispatch
// boundary so one misbehaving subscriber cannot kill the loop
// goroutine. The panic is reported through the structured logger and
// on_error, then dispatch continues with the next record/event.
func (c *Client) invoke(rec *SubscriptionRecord, err error, reply Reply) {
	if rec.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("redis: recovered panic in handler")
			if c.onError != nil {
				c.onError(fmt.Errorf("redis: handler panic: %v", r))
			}
		}
	}()
	rec.handler(err, reply)
}

// loop is the single goroutine that owns every piece of mutable
// dispatch-core state. It is the only goroutine that ever touches a
// Registry, the command queue, or a connHalf's connection/reader
// fields after setup.
func (c *Client) loop() {
	for evt := range c.events {
		switch e := evt.(type) {
		case evtConnectRequest:
			c.handleConnectRequest()
		case evtConnected:
			c.handleConnected(e)
		case evtDialError:
			c.handleDialError(e)
		case evtData:
			c.handleData(e)
		case evtReadError:
			c.handleTransportError(e.kind, e.err)
		case evtWriteError:
			c.handleWriteError(e.kind, e.err)
		case evtCommand:
			c.handleCommand(e)
		case evtDisconnect:
			c.handleDisconnect()
		case timerTick:
			c.handleTick(e)
		case evtExit:
			c.flags |= flagFreeing
			c.handleDisconnect()
			close(c.closed)
			e.done <- struct{}{}
			return
		}
	}
}

func (c *Client) handleConnectRequest() {
	if c.flags&(flagConnecting|flagConnected) != 0 {
		return
	}
	c.flags |= flagConnecting
	c.cmd.connect()
	c.sub.connect()
}

func (c *Client) handleConnected(e evtConnected) {
	c.half(e.kind).onConnected(e.conn)
	if c.cmd.state == tsConnected && c.sub.state == tsConnected {
		c.flags &^= flagConnecting
		c.flags |= flagConnected
		if c.everConnected {
			c.metrics.reconnected()
		}
		c.everConnected = true
		if c.onConnect != nil {
			c.onConnect()
		}
	}
}

func (c *Client) handleDialError(e evtDialError) {
	c.logger.Error().Err(e.err).Str("transport", e.kind.String()).Msg("redis: dial failed")
	if c.onError != nil {
		c.onError(e.err)
	}
}

func (c *Client) handleTransportError(kind transport, err error) {
	c.logger.Error().Err(err).Str("transport", kind.String()).Msg("redis: transport error")
	if c.onError != nil {
		c.onError(err)
	}
	c.teardown()
}

// handleWriteError implements the narrow write-error action of §4.5/§7:
// a failed write is not a full disconnect. It pops just the command
// queue head (if any) and delivers the error to its continuation,
// leaving both transports and every registry untouched; a read error
// on the same connection (which normally follows) drives the actual
// teardown.
func (c *Client) handleWriteError(kind transport, err error) {
	c.logger.Error().Err(err).Str("transport", kind.String()).Msg("redis: write error")
	if c.onError != nil {
		c.onError(err)
	}
	if rec, _, ok := c.queue.pop(); ok {
		c.invoke(rec, err, Reply{})
	}
}

// teardown implements Disconnect's Closing/Freeing bookkeeping (§4.5,
// §7): close both transports, drop or notify the queue, destroy every
// registry (stopping timers), and fire on_disconnect.
func (c *Client) teardown() {
	if c.flags&flagDisconnecting != 0 {
		return
	}
	c.flags |= flagDisconnecting
	c.cmd.close()
	c.sub.close()

	dropped := c.queue.drain()
	if !c.DropQueueOnDisconnect {
		for _, rec := range dropped {
			c.invoke(rec, ErrConnLost, Reply{})
		}
	}

	c.channels.DestroyAll()
	c.patterns.DestroyAll()
	c.timers.DestroyAll()

	c.flags = 0
	c.metrics.setActiveSubscriptions(0)

	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Client) handleDisconnect() { c.teardown() }

func (c *Client) handleTick(t timerTick) {
	recs := c.timers.Search(timeKey(t.period))
	for _, rec := range recs {
		if !rec.initialized {
			c.invoke(rec, errNotInitialized, Reply{})
			continue
		}
		c.invoke(rec, nil, Reply{Type: TypeArray, Array: []Reply{
			{Type: TypeString, Bytes: []byte("timer")},
			{Type: TypeInteger, Integer: int64(t.period)},
			{Type: TypeInteger, Integer: t.elapsed.Milliseconds()},
		}})
	}
}

func (c *Client) handleCommand(e evtCommand) {
	if e.rec.degenerate() {
		c.issueCommand(e)
		return
	}
	c.attachSubscription(e)
}

func (c *Client) issueCommand(e evtCommand) {
	if !c.isConnected() || c.flags&(flagDisconnecting|flagFreeing) != 0 {
		c.metrics.commandIssued("not_connected")
		c.invoke(e.rec, ErrNotConnected, Reply{})
		return
	}
	c.queue.push(e.rec, time.Now())
	c.cmd.write(formatArgv(e.argv))
	if e.monitor {
		c.flags |= flagMonitoring
	}
	c.metrics.commandIssued("issued")
}

// attachSubscription registers e.rec's channels. A timer channel only
// starts ticking here when the record carries no non-timer channel to
// wait on (no wire argv, so no ack will ever arrive); otherwise its
// timer is started later, during the ack-walk in
// dispatchSubscribeAck, once a paired name on the same record is
// acknowledged by the server.
func (c *Client) attachSubscription(e evtCommand) {
	startTimersNow := len(e.argv) == 0
	for i := range e.rec.channels {
		ch := &e.rec.channels[i]
		if ch.timer() {
			if startTimersNow {
				c.startTimerChannel(e.rec, ch)
			}
		} else {
			c.channels.Insert(ch.key, e.rec)
		}
	}
	e.rec.checkInitialized()
	c.metrics.setActiveSubscriptions(len(c.channels.byName) + len(c.timers.byPeriod))

	if len(e.argv) == 0 {
		return
	}
	if !c.isConnected() {
		c.invoke(e.rec, ErrNotConnected, Reply{})
		return
	}
	c.sub.write(formatArgv(e.argv))
}

// startTimerChannel inserts ch into the timers registry (starting its
// ticker the first time a period is used) and marks it SUBSCRIBED.
func (c *Client) startTimerChannel(rec *SubscriptionRecord, ch *SubscriptionChannel) {
	created := c.timers.Insert(ch.key, rec)
	if created {
		stop := c.wheel.start(ch.key.period)
		c.timers.SetTimerStop(ch.key, stop)
	}
	ch.flags |= flagSubscribed
	c.metrics.setActiveSubscriptions(len(c.channels.byName) + len(c.timers.byPeriod))
}

func (c *Client) handleData(e evtData) {
	h := c.half(e.kind)
	if h.reader == nil {
		return
	}
	if err := h.reader.Feed(e.b); err != nil {
		c.handleTransportError(e.kind, err)
		return
	}
	for {
		reply, status, err := h.reader.GetReply()
		if err != nil {
			c.handleTransportError(e.kind, err)
			return
		}
		if status != Ready {
			return
		}
		if e.kind == cmdTransport {
			c.dispatchCommandReply(reply)
		} else {
			c.dispatchSubscriptionReply(reply)
		}
	}
}

func (c *Client) dispatchCommandReply(reply Reply) {
	rec, issuedAt, ok := c.queue.pop()
	if !ok {
		return // server sent more replies than expected; tolerated
	}
	c.metrics.dispatched(time.Since(issuedAt).Seconds())
	if reply.Type == TypeError {
		c.invoke(rec, ServerError(reply.Bytes), Reply{})
	} else {
		c.invoke(rec, nil, reply)
	}
	if c.flags&flagMonitoring != 0 {
		c.queue.push(rec, time.Now())
	}
}

func (c *Client) dispatchSubscriptionReply(reply Reply) {
	if reply.Type != TypeArray || len(reply.Array) < 2 {
		return
	}
	kind := string(reply.Array[0].Bytes)
	name := string(reply.Array[1].Bytes)

	base := kind
	if strings.HasPrefix(kind, "p") {
		base = kind[1:]
	}

	switch base {
	case "unsubscribe":
		if c.EnableUnsubscribe {
			c.dispatchUnsubscribeAck(name)
		}
	case "subscribe":
		c.dispatchSubscribeAck(name, reply)
	default: // "message"
		c.dispatchMessage(name, reply)
	}
}

func (c *Client) dispatchSubscribeAck(name string, reply Reply) {
	key := nameKey(name)
	recs := c.channels.Search(key)
	for _, rec := range recs {
		if rec.initialized {
			continue
		}
		done := false
		for i := range rec.channels {
			ch := &rec.channels[i]
			if !ch.timer() && ch.key.name == name && !ch.subscribed() {
				ch.flags |= flagSubscribed
				done = true
			}
		}
		if done {
			for i := range rec.channels {
				ch := &rec.channels[i]
				if ch.timer() && !ch.subscribed() {
					c.startTimerChannel(rec, ch)
				}
			}
		}
		rec.checkInitialized()
		if done {
			if !c.cfg.IgnoreSubAck {
				c.invoke(rec, nil, rewriteDelivery(reply))
			}
			return
		}
	}
}

// dispatchUnsubscribeAck clears name's SUBSCRIBED bit on every record
// attached to it and drops each one from name's own registry slot.
// This is independent of the record's other channels: a record still
// active on a different name must stop receiving name's events, so
// its slot under name is removed regardless of what else it is
// subscribed to.
func (c *Client) dispatchUnsubscribeAck(name string) {
	key := nameKey(name)
	recs := append([]*SubscriptionRecord(nil), c.channels.Search(key)...)
	for _, rec := range recs {
		for i := range rec.channels {
			ch := &rec.channels[i]
			if !ch.timer() && ch.key.name == name {
				ch.flags &^= flagSubscribed
			}
		}
		c.channels.Remove(key, rec)
	}
	c.metrics.setActiveSubscriptions(len(c.channels.byName) + len(c.timers.byPeriod))
}

func (c *Client) dispatchMessage(name string, reply Reply) {
	key := nameKey(name)
	for _, rec := range c.channels.Search(key) {
		if rec.initialized {
			c.invoke(rec, nil, rewriteDelivery(reply))
		} else {
			c.invoke(rec, errNotInitialized, Reply{})
		}
	}
}

// flattenArgs expands the dynamic token list accepted by Command and
// Subscribe into wire-ready byte slices.
func flattenArgs(tokens []any) ([][]byte, error) {
	var out [][]byte
	var walk func(t any) error
	walk = func(t any) error {
		switch v := t.(type) {
		case []byte:
			out = append(out, v)
		case string:
			out = append(out, []byte(v))
		case int:
			out = append(out, strconv.AppendInt(nil, int64(v), 10))
		case int64:
			out = append(out, strconv.AppendInt(nil, v, 10))
		case uint64:
			out = append(out, strconv.AppendUint(nil, v, 10))
		case []string:
			for _, s := range v {
				out = append(out, []byte(s))
			}
		case [][]byte:
			out = append(out, v...)
		case []any:
			for _, e := range v {
				if err := walk(e); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("redis: unsupported token type %T", t)
		}
		return nil
	}
	for _, t := range tokens {
		if err := walk(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// extractTimerTokens strips any "__timer@0__:<n>" token from argv,
// returning the remaining wire tokens and the timer channels they
// denote.
func extractTimerTokens(argv [][]byte) ([][]byte, []SubscriptionChannel) {
	wire := make([][]byte, 0, len(argv))
	var channels []SubscriptionChannel
	for _, a := range argv {
		s := string(a)
		if len(s) > len(timerPrefix) && s[:len(timerPrefix)] == timerPrefix {
			if n, err := strconv.ParseUint(s[len(timerPrefix):], 10, 64); err == nil {
				channels = append(channels, SubscriptionChannel{key: timeKey(n), flags: flagTimer})
				continue
			}
		}
		wire = append(wire, a)
	}
	return wire, channels
}
