package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

// localSender delivers straight into a Registry, standing in for the Node
// Controller's local-delivery fast path.
type localSender struct {
	registry *Registry
}

func (s *localSender) SendChan(id types.ChannelID, value types.Message) error {
	s.registry.Deliver(id, value)
	return nil
}

func newTestRegistry(owner types.ProcessID) (*Registry, *sync.Cond) {
	cond := sync.NewCond(&sync.Mutex{})
	return NewRegistry(owner, cond, serialize.NewGobSerializer()), cond
}

func TestSendReceiveSingleChannel(t *testing.T) {
	owner := types.ProcessID{Node: "n1", Local: 1}
	registry, _ := newTestRegistry(owner)
	ser := serialize.NewGobSerializer()
	sender := &localSender{registry: registry}

	send, recv := NewChan[string](registry)
	SendChan[string](sender, ser, send, "hello")

	v, ok := ReceiveChan[string](recv, NonBlockingMode, 0)
	if !ok || v != "hello" {
		t.Fatalf("expected hello, got %q ok=%v", v, ok)
	}
}

func TestReceiveChanNonBlockingEmpty(t *testing.T) {
	owner := types.ProcessID{Node: "n1", Local: 1}
	registry, _ := newTestRegistry(owner)
	_, recv := NewChan[int](registry)

	_, ok := ReceiveChan[int](recv, NonBlockingMode, 0)
	if ok {
		t.Fatal("expected no value on an empty channel")
	}
}

func TestMergePortsBiasedPrefersFirst(t *testing.T) {
	owner := types.ProcessID{Node: "n1", Local: 1}
	registry, _ := newTestRegistry(owner)
	ser := serialize.NewGobSerializer()
	sender := &localSender{registry: registry}

	sendA, recvA := NewChan[int](registry)
	sendB, recvB := NewChan[int](registry)
	merged := MergePortsBiased[int](recvA, recvB)

	SendChan[int](sender, ser, sendB, 2)
	SendChan[int](sender, ser, sendA, 1)

	v, ok := ReceiveChan[int](merged, NonBlockingMode, 0)
	if !ok || v != 1 {
		t.Fatalf("expected the biased merge to prefer recvA's value 1, got %v ok=%v", v, ok)
	}
	v, ok = ReceiveChan[int](merged, NonBlockingMode, 0)
	if !ok || v != 2 {
		t.Fatalf("expected 2 next, got %v ok=%v", v, ok)
	}
}

func TestMergePortsRRRotatesAfterEachReceive(t *testing.T) {
	owner := types.ProcessID{Node: "n1", Local: 1}
	registry, _ := newTestRegistry(owner)
	ser := serialize.NewGobSerializer()
	sender := &localSender{registry: registry}

	sendA, recvA := NewChan[int](registry)
	sendB, recvB := NewChan[int](registry)
	merged := MergePortsRR[int](recvA, recvB)

	SendChan[int](sender, ser, sendA, 10)
	SendChan[int](sender, ser, sendB, 20)
	SendChan[int](sender, ser, sendA, 30)

	first, _ := ReceiveChan[int](merged, NonBlockingMode, 0)
	second, _ := ReceiveChan[int](merged, NonBlockingMode, 0)
	if first != 10 || second != 20 {
		t.Fatalf("expected round-robin order 10,20 got %v,%v", first, second)
	}
}

func TestBlockingReceiveChanWakesOnSend(t *testing.T) {
	owner := types.ProcessID{Node: "n1", Local: 1}
	registry, _ := newTestRegistry(owner)
	ser := serialize.NewGobSerializer()
	sender := &localSender{registry: registry}

	send, recv := NewChan[string](registry)
	done := make(chan string, 1)
	go func() {
		v, ok := ReceiveChan[string](recv, BlockingMode, 0)
		if !ok {
			done <- ""
			return
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	SendChan[string](sender, ser, send, "woke up")

	select {
	case v := <-done:
		if v != "woke up" {
			t.Fatalf("expected woke up, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("blocking ReceiveChan never woke up")
	}
}

func TestCloseDropsChannels(t *testing.T) {
	owner := types.ProcessID{Node: "n1", Local: 1}
	registry, _ := newTestRegistry(owner)
	ser := serialize.NewGobSerializer()
	sender := &localSender{registry: registry}

	send, recv := NewChan[int](registry)
	registry.Close()
	SendChan[int](sender, ser, send, 1)

	_, ok := ReceiveChan[int](recv, NonBlockingMode, 0)
	if ok {
		t.Fatal("expected delivery to a closed registry's channel to be silently dropped")
	}
}
