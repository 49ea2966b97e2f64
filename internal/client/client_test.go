package client_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"periscope/internal/client"
	"periscope/internal/clocksync"
	"periscope/internal/config"
	"periscope/internal/daemon"
	"periscope/internal/logging"
	"periscope/internal/testsupport"
	"periscope/internal/wire"
)

func startDaemon(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d := daemon.New(cfg, logging.NewNop(), nil)
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") || strings.Contains(err.Error(), "permission denied") {
			t.Skipf("cannot create shared memory in this environment: %v", err)
		}
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return cfg
}

func TestConnectAndStatus(t *testing.T) {
	cfg := startDaemon(t)

	c, err := client.Connect(cfg, wire.RoleConsumer, "status-probe")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if c.PeerID() == "" {
		t.Fatal("connected client has no peer ID")
	}

	snap, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(snap.Peers) != 1 || snap.Peers[0].ID != c.PeerID() {
		t.Fatalf("snapshot peers = %+v", snap.Peers)
	}
}

func TestClaimAndRelease(t *testing.T) {
	cfg := startDaemon(t)

	producer, err := client.Connect(cfg, wire.RoleProducer, "injector")
	if err != nil {
		t.Fatalf("Connect producer: %v", err)
	}
	t.Cleanup(func() { _ = producer.Close() })
	if err := producer.Claim(); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	rival, err := client.Connect(cfg, wire.RoleProducer, "rival")
	if err != nil {
		t.Fatalf("Connect rival: %v", err)
	}
	t.Cleanup(func() { _ = rival.Close() })
	if err := rival.Claim(); !errors.Is(err, client.ErrRejected) {
		t.Fatalf("rival claim err = %v, want ErrRejected", err)
	}

	if err := producer.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := rival.Claim(); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("claim never freed after release")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHeartbeatPromotesToStreaming(t *testing.T) {
	cfg := startDaemon(t)

	c, err := client.Connect(cfg, wire.RoleProducer, "injector")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// The heartbeat is applied by the daemon-side peer goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := c.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if len(snap.Peers) == 1 && snap.Peers[0].State == "streaming" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer never reached streaming state: %+v", snap.Peers)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClockProbeFeedsEstimator(t *testing.T) {
	cfg := startDaemon(t)

	c, err := client.Connect(cfg, wire.RoleConsumer, "clock")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	est := clocksync.NewEstimator(clocksync.Config{})
	for i := 0; i < 8; i++ {
		t0, t1, t2, err := c.ClockProbe()
		if err != nil {
			t.Fatalf("ClockProbe: %v", err)
		}
		if t2.Before(t0) {
			t.Fatalf("probe went backwards: t0=%v t2=%v", t0, t2)
		}
		// Occasional samples may be rejected as round-trip outliers.
		_ = est.AddSample(t0, t1, t2)
	}
	offset, err := est.Offset()
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	// Same host, same clock: the offset is bounded by the round trip.
	if offset < -time.Second || offset > time.Second {
		t.Fatalf("same-host offset = %v", offset)
	}
}

func TestStopCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := daemon.New(cfg, logging.NewNop(), nil)
	if err := d.Start(context.Background()); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") || strings.Contains(err.Error(), "permission denied") {
			t.Skipf("cannot create shared memory in this environment: %v", err)
		}
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	c, err := client.Connect(cfg, wire.RoleConsumer, "ctl")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-d.StopRequested():
	case <-time.After(time.Second):
		t.Fatal("stop request never reached the daemon")
	}
}

func TestHandshakeRejectionSurfaces(t *testing.T) {
	cfg := startDaemon(t)

	if _, err := client.Connect(cfg, wire.Role(9), "bad-role"); !errors.Is(err, client.ErrRejected) {
		t.Fatalf("bad-role connect err = %v, want ErrRejected", err)
	}
}
