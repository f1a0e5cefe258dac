package redis

import "testing"

func TestFormatCommandRoundTrip(t *testing.T) {
	golden := []struct {
		name string
		args [][]byte
	}{
		{"PING", nil},
		{"SET", [][]byte{[]byte("a"), []byte("1")}},
		{"GET", [][]byte{[]byte("a")}},
		{"MSET", [][]byte{[]byte("a"), []byte("1"), []byte("b"), []byte("2")}},
	}

	for _, gold := range golden {
		wire, err := FormatCommand(gold.name, gold.args...)
		if err != nil {
			t.Fatalf("FormatCommand(%q): %v", gold.name, err)
		}

		r := NewReader()
		if err := r.Feed(wire); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		reply, status, err := r.GetReply()
		if err != nil || status != Ready {
			t.Fatalf("GetReply: status=%v err=%v", status, err)
		}
		if reply.Type != TypeArray || len(reply.Array) != 1+len(gold.args) {
			t.Fatalf("got %+v, want array of length %d", reply, 1+len(gold.args))
		}
		if string(reply.Array[0].Bytes) != gold.name {
			t.Errorf("got name %q, want %q", reply.Array[0].Bytes, gold.name)
		}
		for i, a := range gold.args {
			if string(reply.Array[i+1].Bytes) != string(a) {
				t.Errorf("arg %d: got %q, want %q", i, reply.Array[i+1].Bytes, a)
			}
		}
	}
}

func TestFormatCommandStackOverflow(t *testing.T) {
	args := make([][]byte, maxStackArgs+1)
	for i := range args {
		args[i] = []byte("x")
	}
	if _, err := FormatCommand("CMD", args...); err != errStackOverflow {
		t.Fatalf("got %v, want errStackOverflow", err)
	}
}
