package redis

import (
	"strings"
	"testing"
)

func readAll(t *testing.T, r *Reader) []Reply {
	t.Helper()
	var out []Reply
	for {
		reply, status, err := r.GetReply()
		if err != nil {
			t.Fatalf("GetReply error: %v", err)
		}
		if status == NeedMore {
			return out
		}
		out = append(out, reply)
	}
}

func TestReaderGolden(t *testing.T) {
	golden := []struct {
		name  string
		input string
		want  Reply
	}{
		{"status", "+OK\r\n", Reply{Type: TypeStatus, Bytes: []byte("OK")}},
		{"error", "-ERR bad\r\n", Reply{Type: TypeError, Bytes: []byte("ERR bad")}},
		{"integer", ":123\r\n", Reply{Type: TypeInteger, Integer: 123}},
		{"negative integer", ":-7\r\n", Reply{Type: TypeInteger, Integer: -7}},
		{"explicit positive integer", ":+5\r\n", Reply{Type: TypeInteger, Integer: 5}},
		{"bulk string", "$5\r\nhello\r\n", Reply{Type: TypeString, Bytes: []byte("hello")}},
		{"empty bulk string", "$0\r\n\r\n", Reply{Type: TypeString, Bytes: []byte{}}},
		{"nil bulk", "$-1\r\n", Reply{Type: TypeNil}},
		{"nil array", "*-1\r\n", Reply{Type: TypeNil}},
		{"empty array", "*0\r\n", Reply{Type: TypeArray, Array: []Reply{}}},
		{
			"nested array",
			"*2\r\n$3\r\nfoo\r\n*1\r\n:-7\r\n",
			Reply{Type: TypeArray, Array: []Reply{
				{Type: TypeString, Bytes: []byte("foo")},
				{Type: TypeArray, Array: []Reply{{Type: TypeInteger, Integer: -7}}},
			}},
		},
	}

	for _, gold := range golden {
		t.Run(gold.name, func(t *testing.T) {
			r := NewReader()
			if err := r.Feed([]byte(gold.input)); err != nil {
				t.Fatalf("Feed: %v", err)
			}
			got := readAll(t, r)
			if len(got) != 1 {
				t.Fatalf("got %d replies, want 1", len(got))
			}
			if !repliesEqual(got[0], gold.want) {
				t.Errorf("got %+v, want %+v", got[0], gold.want)
			}
		})
	}
}

func repliesEqual(a, b Reply) bool {
	if a.Type != b.Type || a.Integer != b.Integer || string(a.Bytes) != string(b.Bytes) {
		return false
	}
	if len(a.Array) != len(b.Array) {
		return false
	}
	for i := range a.Array {
		if !repliesEqual(a.Array[i], b.Array[i]) {
			return false
		}
	}
	return true
}

func TestReaderFragmentedFeed(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("$5\r\nhe"))
	if _, status, _ := r.GetReply(); status != NeedMore {
		t.Fatalf("got status %v after partial feed, want NeedMore", status)
	}
	r.Feed([]byte("llo\r\n"))
	reply, status, err := r.GetReply()
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if status != Ready || string(reply.Bytes) != "hello" {
		t.Fatalf("got %v %q, want Ready \"hello\"", status, reply.Bytes)
	}
}

func TestReaderFeedIsPure(t *testing.T) {
	whole := "+OK\r\n:1\r\n$3\r\nfoo\r\n"

	r1 := NewReader()
	r1.Feed([]byte(whole))
	want := readAll(t, r1)

	r2 := NewReader()
	for i := range whole {
		r2.Feed([]byte(whole[i : i+1]))
	}
	got := readAll(t, r2)

	if len(got) != len(want) {
		t.Fatalf("got %d replies split byte-by-byte, want %d", len(got), len(want))
	}
	for i := range want {
		if !repliesEqual(got[i], want[i]) {
			t.Errorf("reply %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReaderArrayDepth(t *testing.T) {
	// Depth 7 (7 nested single-element arrays) must parse cleanly.
	var ok strings.Builder
	for i := 0; i < 7; i++ {
		ok.WriteString("*1\r\n")
	}
	ok.WriteString(":1\r\n")

	r := NewReader()
	r.Feed([]byte(ok.String()))
	if _, status, err := r.GetReply(); err != nil || status != Ready {
		t.Fatalf("depth-7 array: status=%v err=%v, want Ready", status, err)
	}

	// Depth 8 must be rejected as a protocol error.
	var bad strings.Builder
	for i := 0; i < 8; i++ {
		bad.WriteString("*1\r\n")
	}
	bad.WriteString(":1\r\n")

	r2 := NewReader()
	r2.Feed([]byte(bad.String()))
	if _, _, err := r2.GetReply(); err == nil {
		t.Fatalf("depth-8 array: want protocol error, got nil")
	}
}

func TestReaderBufferCompaction(t *testing.T) {
	r := NewReader()
	// Feed 205 five-byte replies (1025 bytes): consuming the last one
	// moves the consumed prefix past the 1024-byte compaction threshold.
	var sb strings.Builder
	for i := 0; i < 205; i++ {
		sb.WriteString("+OK\r\n")
	}
	r.Feed([]byte(sb.String()))

	for i := 0; i < 205; i++ {
		if _, status, err := r.GetReply(); err != nil || status != Ready {
			t.Fatalf("reply %d: status=%v err=%v", i, status, err)
		}
	}
	if r.pos != 0 {
		t.Errorf("pos = %d after compaction, want 0", r.pos)
	}
}

func TestReaderMalformedLine(t *testing.T) {
	r := NewReader()
	if err := r.Feed([]byte("&nope\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if _, _, err := r.GetReply(); err == nil {
		t.Fatal("want protocol error for unknown type byte")
	}
}

func TestReaderMalformedIntegerYieldsMinusOne(t *testing.T) {
	r := NewReader()
	r.Feed([]byte(":abc\r\n"))
	reply, status, err := r.GetReply()
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if status != Ready || reply.Integer != -1 {
		t.Fatalf("got %v %d, want Ready -1", status, reply.Integer)
	}
}
