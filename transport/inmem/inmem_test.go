package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jabolina/swarm/transport"
)

func TestOpenAndDeliverInOrder(t *testing.T) {
	net := NewNetwork()
	a := New(net, "a")
	b := New(net, "b")

	conn, err := a.Open(context.Background(), "b")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := conn.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case in := <-b.Inbound():
			if in.Remote != "a" || in.Frame[0] != byte(i) {
				t.Fatalf("expected frame %d from a, got %+v", i, in)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for inbound frame")
		}
	}
}

func TestOpenUnknownNode(t *testing.T) {
	net := NewNetwork()
	a := New(net, "a")
	if _, err := a.Open(context.Background(), "ghost"); !errors.Is(err, ErrNoSuchNode) {
		t.Fatalf("expected ErrNoSuchNode, got %v", err)
	}
}

func TestSendFailsAfterClose(t *testing.T) {
	net := NewNetwork()
	a := New(net, "a")
	b := New(net, "b")

	conn, err := a.Open(context.Background(), "b")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := conn.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-b.Inbound()

	a.Close()
	if err := conn.Send([]byte("after close")); err == nil {
		t.Fatal("expected Send on a closed connection to fail")
	}
}

func TestSeverBreaksOnlyThatPair(t *testing.T) {
	net := NewNetwork()
	a := New(net, "a")
	New(net, "b")
	c := New(net, "c")

	connAB, err := a.Open(context.Background(), "b")
	if err != nil {
		t.Fatalf("Open a->b: %v", err)
	}
	connAC, err := a.Open(context.Background(), "c")
	if err != nil {
		t.Fatalf("Open a->c: %v", err)
	}

	Sever(net, "a", "b")

	select {
	case f := <-a.Failures():
		if f.Remote != "b" {
			t.Fatalf("expected failure for b, got %v", f.Remote)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a failure event after Sever")
	}

	if err := connAB.Send([]byte("x")); err == nil {
		t.Fatal("expected the severed connection to refuse sends")
	}
	if err := connAC.Send([]byte("still alive")); err != nil {
		t.Fatalf("expected the untouched a->c connection to still work: %v", err)
	}
	select {
	case in := <-c.Inbound():
		if string(in.Frame) != "still alive" {
			t.Fatalf("unexpected frame: %s", in.Frame)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a->c delivery to still succeed")
	}
}

var _ transport.Transport = (*Transport)(nil)
