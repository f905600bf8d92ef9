package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len = %d, want 5", rb.Len())
	}
	got := rb.Range(1, 100)
	if len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("after wrap: %+v", got)
	}
}

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(4)
	if out, ok := rb.Since(0); !ok || len(out) != 0 {
		t.Errorf("empty ring: %v %v", out, ok)
	}

	for i := int64(1); i <= 6; i++ {
		rb.Push(i, []byte{byte('0' + i)})
	}
	// Ring holds 3..6.
	out, ok := rb.Since(4)
	if !ok || len(out) != 2 || out[0].Seq != 5 {
		t.Errorf("Since(4) = %+v, %v", out, ok)
	}
	out, ok = rb.Since(2)
	if !ok || len(out) != 4 {
		t.Errorf("Since(2) = %d entries, ok=%v", len(out), ok)
	}
	out, ok = rb.Since(1)
	if ok {
		t.Error("Since(1) should report a gap: seq 2 was evicted")
	}
	if len(out) != 4 {
		t.Errorf("Since(1) still returns what it has, got %d", len(out))
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'
	if got := string(rb.Range(1, 1)[0].Data); got != "abc" {
		t.Errorf("stored %q, want abc", got)
	}
}
