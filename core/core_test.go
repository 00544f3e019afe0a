package core

import (
	"testing"
	"time"

	"github.com/jabolina/swarm/closures"
	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/telemetry"
	"github.com/jabolina/swarm/transport/inmem"
	"github.com/jabolina/swarm/types"
)

func newTestNode(t *testing.T, net *inmem.Network, name types.NodeID) *NodeController {
	t.Helper()
	ser := serialize.NewGobSerializer()
	table := closures.NewRemoteTable(ser)
	logger := telemetry.NewLogger(string(name), false)
	tr := inmem.New(net, name)
	n := NewNodeController(name, tr, table, ser, logger, telemetry.NoopMetrics{})
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestSendLocalDelivery(t *testing.T) {
	net := inmem.NewNetwork()
	node := newTestNode(t, net, "n1")

	received := make(chan string, 1)
	receiver := node.SpawnLocal(func(p *Process) (interface{}, error) {
		v, ok := Expect[string](p)
		if ok {
			received <- v
		}
		return nil, nil
	})

	sender := node.SpawnLocal(func(p *Process) (interface{}, error) {
		p.Send(receiver.GetSelfPid(), "hi there")
		return nil, nil
	})
	_ = sender

	select {
	case v := <-received:
		if v != "hi there" {
			t.Fatalf("expected hi there, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("local send was never delivered")
	}
}

func TestMonitorNotifiesOnNormalExit(t *testing.T) {
	net := inmem.NewNetwork()
	node := newTestNode(t, net, "n1")

	childDone := make(chan struct{})
	child := node.SpawnLocal(func(p *Process) (interface{}, error) {
		<-childDone
		return nil, nil
	})

	notified := make(chan types.DeathReason, 1)
	node.SpawnLocal(func(p *Process) (interface{}, error) {
		ref := p.Monitor(child.GetSelfPid())
		close(childDone)
		n, ok := Expect[types.MonitorNotification](p)
		if !ok || n.Ref != ref {
			t.Errorf("expected a matching monitor notification")
			return nil, nil
		}
		notified <- n.Reason
		return nil, nil
	})

	select {
	case reason := <-notified:
		if reason.Kind != types.ReasonNormal {
			t.Fatalf("expected normal exit, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor notification never arrived")
	}
}

func TestLinkToAlreadyDeadProcessNotifiesImmediately(t *testing.T) {
	net := inmem.NewNetwork()
	node := newTestNode(t, net, "n1")

	dead := node.SpawnLocal(func(p *Process) (interface{}, error) { return nil, nil })
	<-dead.Done()

	notified := make(chan types.ExitSignal, 1)
	node.SpawnLocal(func(p *Process) (interface{}, error) {
		p.Link(dead.GetSelfPid())
		exit, ok := Expect[types.ExitSignal](p)
		if ok {
			notified <- exit
		}
		return nil, nil
	})

	select {
	case exit := <-notified:
		if exit.From != dead.GetSelfPid() {
			t.Fatalf("expected exit from %v, got %v", dead.GetSelfPid(), exit.From)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an immediate exit signal for an already-dead link target")
	}
}

func TestLinkIsBidirectionalLocally(t *testing.T) {
	net := inmem.NewNetwork()
	node := newTestNode(t, net, "n1")

	linkerDone := make(chan struct{})
	targetExit := make(chan types.ExitSignal, 1)

	target := node.SpawnLocal(func(p *Process) (interface{}, error) {
		exit, ok := Expect[types.ExitSignal](p)
		if ok {
			targetExit <- exit
		}
		return nil, nil
	})
	targetPid := target.GetSelfPid()

	linker := node.SpawnLocal(func(p *Process) (interface{}, error) {
		p.Link(targetPid)
		<-linkerDone
		return nil, nil
	})
	linkerPid := linker.GetSelfPid()

	time.Sleep(50 * time.Millisecond)
	close(linkerDone)

	select {
	case exit := <-targetExit:
		if exit.From != linkerPid {
			t.Fatalf("expected target to be notified of linker %v dying, got exit from %v", linkerPid, exit.From)
		}
	case <-time.After(time.Second):
		t.Fatal("target was never notified when the linker (the original caller of Link) died")
	}
}

func TestLinkIsBidirectionalAcrossNodes(t *testing.T) {
	net := inmem.NewNetwork()
	linkerNode := newTestNode(t, net, "linker")
	targetNode := newTestNode(t, net, "target")

	targetExit := make(chan types.ExitSignal, 1)
	target := targetNode.SpawnLocal(func(p *Process) (interface{}, error) {
		exit, ok := Expect[types.ExitSignal](p)
		if ok {
			targetExit <- exit
		}
		return nil, nil
	})
	targetPid := target.GetSelfPid()

	linkerDone := make(chan struct{})
	linker := linkerNode.SpawnLocal(func(p *Process) (interface{}, error) {
		p.Link(targetPid)
		<-linkerDone
		return nil, nil
	})
	linkerPid := linker.GetSelfPid()

	// Give the mirrored link registration time to reach the linker's own
	// node before the linker terminates.
	time.Sleep(100 * time.Millisecond)
	close(linkerDone)

	select {
	case exit := <-targetExit:
		if exit.From != linkerPid {
			t.Fatalf("expected target to be notified of linker %v dying, got exit from %v", linkerPid, exit.From)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote target was never notified when the linker died")
	}
}

func TestCrossNodeSpawnAndSend(t *testing.T) {
	net := inmem.NewNetwork()
	serverSer := serialize.NewGobSerializer()
	serverTable := closures.NewRemoteTable(serverSer)
	serverLogger := telemetry.NewLogger("server", false)
	server := NewNodeController("server", inmem.New(net, "server"), serverTable, serverSer, serverLogger, telemetry.NoopMetrics{})
	t.Cleanup(func() { _ = server.Close() })

	received := make(chan string, 1)
	closures.Register[closures.Action](serverTable, "test/echo-once", func([]byte) (closures.Action, error) {
		return WrapBody(func(p *Process) (interface{}, error) {
			v, ok := Expect[string](p)
			if ok {
				received <- v
			}
			return nil, nil
		}), nil
	})

	client := newTestNode(t, net, "client")
	client.SpawnLocal(func(p *Process) (interface{}, error) {
		env, err := p.node.serializer.Encode(struct{}{})
		if err != nil {
			return nil, err
		}
		pid, err := Spawn(p, "server", closures.Closure{Label: "test/echo-once", Env: env})
		if err != nil {
			t.Errorf("Spawn: %v", err)
			return nil, err
		}
		p.Send(pid, "cross node hello")
		return nil, nil
	})

	select {
	case v := <-received:
		if v != "cross node hello" {
			t.Fatalf("expected cross node hello, got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cross-node spawn+send never completed")
	}
}

func TestConnectionFailureSynthesizesDisconnected(t *testing.T) {
	net := inmem.NewNetwork()
	serverSer := serialize.NewGobSerializer()
	serverTable := closures.NewRemoteTable(serverSer)
	server := NewNodeController("server", inmem.New(net, "server"), serverTable, serverSer, telemetry.NewLogger("server", false), telemetry.NoopMetrics{})
	t.Cleanup(func() { _ = server.Close() })

	serverProc := server.SpawnLocal(func(p *Process) (interface{}, error) {
		<-p.Done()
		return nil, nil
	})

	client := newTestNode(t, net, "client")
	notified := make(chan types.DeathReason, 1)
	client.SpawnLocal(func(p *Process) (interface{}, error) {
		ref := p.Monitor(serverProc.GetSelfPid())
		// Force at least one frame to flow so a connection exists to sever.
		p.Send(serverProc.GetSelfPid(), "warm up the connection")
		time.Sleep(50 * time.Millisecond)
		inmem.Sever(net, "client", "server")
		n, ok := Expect[types.MonitorNotification](p)
		if ok && n.Ref == ref {
			notified <- n.Reason
		}
		return nil, nil
	})

	select {
	case reason := <-notified:
		if reason.Kind != types.ReasonDisconnected {
			t.Fatalf("expected Disconnected, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a synthesized Disconnected notification after Sever")
	}
}

func TestRegisterNameAndWhereIsCrossNode(t *testing.T) {
	net := inmem.NewNetwork()
	server := newTestNode(t, net, "server")
	client := newTestNode(t, net, "client")

	named := server.SpawnLocal(func(p *Process) (interface{}, error) {
		p.RegisterName("svc")
		<-p.Done()
		return nil, nil
	})

	found := make(chan types.ProcessID, 1)
	client.SpawnLocal(func(p *Process) (interface{}, error) {
		pid, err := WhereIs(p, "server", "svc")
		if err != nil {
			t.Errorf("WhereIs: %v", err)
			return nil, err
		}
		found <- pid
		return nil, nil
	})

	select {
	case pid := <-found:
		if pid != named.GetSelfPid() {
			t.Fatalf("expected %v, got %v", named.GetSelfPid(), pid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WhereIs never resolved")
	}
}

func TestWhereIsUnknownNameErrors(t *testing.T) {
	net := inmem.NewNetwork()
	server := newTestNode(t, net, "server")
	client := newTestNode(t, net, "client")
	_ = server

	errs := make(chan error, 1)
	client.SpawnLocal(func(p *Process) (interface{}, error) {
		_, err := WhereIs(p, "server", "nobody")
		errs <- err
		return nil, nil
	})

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected ErrNameNotFound for an unregistered name")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WhereIs never replied")
	}
}
