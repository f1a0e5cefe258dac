package redis

import (
	"strconv"
	"sync"
)

// commandBuf is a pooled, growable buffer that assembles one RESP
// multi-bulk command. It is built incrementally: callers add the
// command name first, then zero or more arguments, finishing with
// Bytes.
type commandBuf struct {
	buf  []byte
	argc int
}

var commandBufPool = sync.Pool{
	New: func() interface{} {
		return &commandBuf{buf: make([]byte, 0, 256)}
	},
}

// newCommandBuf returns a pooled buffer with the multi-bulk header
// already reserved; call addBytes or addString for the command name
// and each argument, then finish with Bytes.
func newCommandBuf(argc int) *commandBuf {
	c := commandBufPool.Get().(*commandBuf)
	c.buf = c.buf[:0]
	c.argc = argc
	c.buf = append(c.buf, '*')
	c.buf = strconv.AppendUint(c.buf, uint64(argc), 10)
	c.buf = append(c.buf, '\r', '\n')
	return c
}

func (c *commandBuf) addBytes(a []byte) {
	c.buf = append(c.buf, '$')
	c.buf = strconv.AppendUint(c.buf, uint64(len(a)), 10)
	c.buf = append(c.buf, '\r', '\n')
	c.buf = append(c.buf, a...)
	c.buf = append(c.buf, '\r', '\n')
}

func (c *commandBuf) addString(a string) {
	c.buf = append(c.buf, '$')
	c.buf = strconv.AppendUint(c.buf, uint64(len(a)), 10)
	c.buf = append(c.buf, '\r', '\n')
	c.buf = append(c.buf, a...)
	c.buf = append(c.buf, '\r', '\n')
}

func (c *commandBuf) addInt(v int64) {
	var tmp [20]byte
	s := strconv.AppendInt(tmp[:0], v, 10)
	c.addBytes(s)
}

// Bytes returns the assembled command. The returned slice is only
// valid until the buffer is released with free.
func (c *commandBuf) Bytes() []byte { return c.buf }

func (c *commandBuf) free() {
	commandBufPool.Put(c)
}

// formatArgv encodes a fully resolved wire argument list (name
// included as argv[0]) as one RESP multi-bulk command.
func formatArgv(argv [][]byte) []byte {
	c := newCommandBuf(len(argv))
	defer c.free()

	for _, a := range argv {
		c.addBytes(a)
	}

	out := make([]byte, len(c.Bytes()))
	copy(out, c.Bytes())
	return out
}

// FormatCommand encodes name and args as one RESP multi-bulk command
// and returns a freshly allocated copy of the wire bytes, safe to
// retain past the call. It rejects calls that would exceed
// maxStackArgs wire arguments, mirroring the source's LUA_MAX_STACK
// guard against unbounded argument lists.
func FormatCommand(name string, args ...[]byte) ([]byte, error) {
	if len(args) > maxStackArgs {
		return nil, errStackOverflow
	}

	c := newCommandBuf(1 + len(args))
	defer c.free()

	c.addString(name)
	for _, a := range args {
		c.addBytes(a)
	}

	out := make([]byte, len(c.Bytes()))
	copy(out, c.Bytes())
	return out, nil
}

// FormatCommandStrings is the string-argument equivalent of
// FormatCommand, avoiding a []byte conversion at each call site for
// callers that already hold strings.
func FormatCommandStrings(name string, args ...string) ([]byte, error) {
	if len(args) > maxStackArgs {
		return nil, errStackOverflow
	}

	c := newCommandBuf(1 + len(args))
	defer c.free()

	c.addString(name)
	for _, a := range args {
		c.addString(a)
	}

	out := make([]byte, len(c.Bytes()))
	copy(out, c.Bytes())
	return out, nil
}
