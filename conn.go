package redis

import (
	"context"
	"net"

	"golang.org/x/time/rate"
)

// transport distinguishes the command connection from the
// subscription connection; both dial the same endpoint.
type transport int

const (
	cmdTransport transport = iota
	subTransport
)

func (t transport) String() string {
	if t == subTransport {
		return "subscription"
	}
	return "command"
}

type transportState int

const (
	tsDisconnected transportState = iota
	tsConnecting
	tsConnected
	tsClosing
)

// Events sent from I/O goroutines into the loop goroutine's select.
// Every field is immutable once sent; the loop goroutine is the only
// reader.
type (
	evtConnected struct {
		kind transport
		conn net.Conn
	}
	evtDialError struct {
		kind transport
		err  error
	}
	evtData struct {
		kind transport
		b    []byte
	}
	evtReadError struct {
		kind transport
		err  error
	}
	evtWriteError struct {
		kind transport
		err  error
	}
)

// writeRequest is one outbound frame queued to a transport's writer
// goroutine.
type writeRequest struct {
	data []byte
}

// connHalf is the loop goroutine's view of one transport: its
// connection, its private RESP reader, and the channel feeding its
// writer goroutine. Only the loop goroutine ever reads or writes these
// fields after connect(); the dial/read/write goroutines communicate
// exclusively through the events channel and writeCh.
type connHalf struct {
	kind  transport
	path  string
	state transportState

	conn   net.Conn
	reader *Reader

	writeCh chan writeRequest
	done    chan struct{}

	limiter *rate.Limiter

	events chan any
}

func newConnHalf(kind transport, path string, events chan any) *connHalf {
	return &connHalf{
		kind:    kind,
		path:    path,
		events:  events,
		writeCh: make(chan writeRequest, 256),
	}
}

// connect starts the dial goroutine. The loop goroutine transitions
// state to Connecting immediately and waits for evtConnected or
// evtDialError.
func (h *connHalf) connect() {
	h.state = tsConnecting
	go func() {
		conn, err := net.Dial("unix", h.path)
		if err != nil {
			h.events <- evtDialError{kind: h.kind, err: err}
			return
		}
		h.events <- evtConnected{kind: h.kind, conn: conn}
	}()
}

// onConnected is invoked by the loop goroutine once it receives
// evtConnected; it records the connection, arms the reader, and
// starts the read and write goroutines.
func (h *connHalf) onConnected(conn net.Conn) {
	h.conn = conn
	h.reader = NewReader()
	h.state = tsConnected
	h.done = make(chan struct{})

	go h.readLoop(conn, h.done)
	go h.writeLoop(conn, h.done)
}

func (h *connHalf) readLoop(conn net.Conn, done chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case h.events <- evtData{kind: h.kind, b: b}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case h.events <- evtReadError{kind: h.kind, err: err}:
			case <-done:
			}
			return
		}
	}
}

func (h *connHalf) writeLoop(conn net.Conn, done chan struct{}) {
	for {
		select {
		case req := <-h.writeCh:
			if err := waitLimiter(context.Background(), h.limiter); err != nil {
				return
			}
			if _, err := conn.Write(req.data); err != nil {
				select {
				case h.events <- evtWriteError{kind: h.kind, err: err}:
				case <-done:
				}
				return
			}
		case <-done:
			return
		}
	}
}

// write queues data for the transport's writer goroutine. It never
// blocks the loop goroutine on I/O itself; at most it blocks briefly
// if the write channel's buffer (256 frames) is momentarily full.
func (h *connHalf) write(data []byte) {
	h.writeCh <- writeRequest{data: data}
}

// close tears down the transport's goroutines and marks it
// disconnected. Safe to call on a half that never connected.
func (h *connHalf) close() {
	if h.state == tsDisconnected {
		return
	}
	h.state = tsClosing
	if h.conn != nil {
		h.conn.Close()
	}
	if h.done != nil {
		close(h.done)
		h.done = nil
	}
	h.state = tsDisconnected
	h.conn = nil
	h.reader = nil
}
