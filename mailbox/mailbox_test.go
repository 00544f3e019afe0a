package mailbox

import (
	"testing"
	"time"

	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

func encode(t *testing.T, ser *serialize.GobSerializer, value interface{}) types.Message {
	t.Helper()
	payload, err := ser.Encode(value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return types.Message{Fingerprint: ser.Fingerprint(value), Payload: payload}
}

func TestReceiveNonBlockingEmpty(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	matchers := []Matcher{MatchType[int](ser, func(int) interface{} { return nil })}
	_, ok, err := q.Receive(NonBlocking, 0, matchers)
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}

func TestSelectiveReceiveSkipsNonMatchingInOrder(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	q.Enqueue(encode(t, ser, "first"))
	q.Enqueue(encode(t, ser, 42))
	q.Enqueue(encode(t, ser, "second"))

	matchers := []Matcher{MatchType[int](ser, func(v int) interface{} { return v })}
	result, ok, err := q.Receive(NonBlocking, 0, matchers)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if result.(int) != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
	if q.Len() != 2 {
		t.Fatalf("expected the two strings to remain, got %d entries", q.Len())
	}
}

func TestMatchIfLeavesMessageInPlaceWhenPredicateFails(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	q.Enqueue(encode(t, ser, 1))
	q.Enqueue(encode(t, ser, 2))

	onlyEven := MatchIf[int](ser, func(v int) bool { return v%2 == 0 }, func(v int) interface{} { return v })
	result, ok, err := q.Receive(NonBlocking, 0, []Matcher{onlyEven})
	if err != nil || !ok || result.(int) != 2 {
		t.Fatalf("expected 2, got result=%v ok=%v err=%v", result, ok, err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", q.Len())
	}
}

func TestBlockingReceiveWakesOnEnqueue(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	matchers := []Matcher{MatchType[string](ser, func(v string) interface{} { return v })}

	done := make(chan interface{}, 1)
	go func() {
		result, ok, err := q.Receive(Blocking, 0, matchers)
		if err != nil || !ok {
			t.Errorf("expected match, got ok=%v err=%v", ok, err)
			done <- nil
			return
		}
		done <- result
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(encode(t, ser, "hello"))

	select {
	case v := <-done:
		if v != "hello" {
			t.Fatalf("expected hello, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("blocking receive never woke up")
	}
}

func TestTimeoutReceiveGivesUp(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	matchers := []Matcher{MatchType[string](ser, func(v string) interface{} { return v })}

	start := time.Now()
	_, ok, err := q.Receive(Timeout, 30*time.Millisecond, matchers)
	if err != nil || ok {
		t.Fatalf("expected timeout miss, got ok=%v err=%v", ok, err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("returned before the deadline")
	}
}

func TestCloseWakesBlockedReceiver(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	matchers := []Matcher{MatchType[string](ser, func(v string) interface{} { return v })}

	done := make(chan bool, 1)
	go func() {
		_, ok, _ := q.Receive(Blocking, 0, matchers)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected a permanent miss after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("close never woke the blocked receiver")
	}
}

func TestMatchAnyDiscardsUnknownMessage(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	q.Enqueue(encode(t, ser, "mystery"))

	var seen types.Message
	matchers := []Matcher{MatchAny(func(m types.Message) interface{} {
		seen = m
		return m
	})}
	_, ok, err := q.Receive(NonBlocking, 0, matchers)
	if err != nil || !ok {
		t.Fatalf("expected MatchAny to always match, got ok=%v err=%v", ok, err)
	}
	if seen.Payload == nil {
		t.Fatal("expected the raw message to be handed to MatchAny's handler")
	}
	if q.Len() != 0 {
		t.Fatalf("expected the mailbox to be empty, got %d", q.Len())
	}
}

func TestDecodeFailureReportsErrorAndDropsMessage(t *testing.T) {
	q := New()
	ser := serialize.NewGobSerializer()
	// Corrupt payload under a matching fingerprint: bytes that are not
	// valid gob won't decode into a string.
	fp := ser.Fingerprint("")
	q.Enqueue(types.Message{Fingerprint: fp, Payload: []byte("not valid gob")})

	matchers := []Matcher{MatchType[string](ser, func(v string) interface{} { return v })}
	_, ok, err := q.Receive(NonBlocking, 0, matchers)
	if err == nil || ok {
		t.Fatalf("expected a decode error, got ok=%v err=%v", ok, err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected the corrupt message to be removed from the queue, got %d remaining", q.Len())
	}
}
