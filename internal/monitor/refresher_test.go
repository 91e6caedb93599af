package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
)

func TestRefresher_FlushWritesSnapshots(t *testing.T) {
	ctx := context.Background()
	snaps := newStubSnapshots()
	f := newFixture(t, DefaultConfig(), WithSnapshotStores(snaps))
	r := NewRefresher(f.mon, discard)

	f.mon.RecordSuccess(ctx, "acme/video", "createJob", time.Second, nil)
	f.mon.RecordFailure(ctx, "acme/video", "getJob", errors.New("rate limit exceeded"), 0, nil)
	f.mon.RecordSuccess(ctx, "acme/image", "createJob", time.Second, nil)

	if got := r.Pending(); len(got) != 2 || got[0] != "acme/image" || got[1] != "acme/video" {
		t.Fatalf("Pending = %v", got)
	}
	if len(snaps.saved) != 0 {
		t.Fatal("snapshots written on the record path")
	}

	if n := r.Flush(ctx); n != 2 {
		t.Errorf("Flush = %d, want 2", n)
	}
	if len(r.Pending()) != 0 {
		t.Error("dirty set not drained")
	}

	h, ok := snaps.saved["acme/video"]
	if !ok {
		t.Fatal("no snapshot for acme/video")
	}
	if h.TotalRequests != 2 || h.Status != domain.HealthDegraded {
		t.Errorf("snapshot = %+v", h)
	}
}

func TestRefresher_AutoRegistersTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig(), WithSnapshotStores(nopSnapshots{}))
	r := NewRefresher(f.mon, discard)

	f.mon.RecordSuccess(ctx, "new-model", "getJob", time.Second, nil)
	r.Flush(ctx)

	tgt, err := f.targets.Get(ctx, "new-model")
	if err != nil {
		t.Fatalf("target not registered: %v", err)
	}
	if !tgt.Active {
		t.Error("registered target is inactive")
	}
	if all := f.mon.GetAllHealth(ctx); len(all) != 1 || all[0].TargetID != "new-model" {
		t.Errorf("GetAllHealth = %+v", all)
	}
}

func TestRefresher_NoAutoRegister(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ManualTargets = true
	f := newFixture(t, cfg)
	r := NewRefresher(f.mon, discard)

	f.mon.RecordSuccess(ctx, "new-model", "getJob", time.Second, nil)
	r.Flush(ctx)

	if _, err := f.targets.Get(ctx, "new-model"); err == nil {
		t.Error("target registered with manual_targets set")
	}
}

func TestRefresher_FailedSnapshotStaysDirty(t *testing.T) {
	ctx := context.Background()
	snaps := newStubSnapshots()
	snaps.err = errors.New("redis unavailable")
	f := newFixture(t, DefaultConfig(), WithSnapshotStores(snaps))
	r := NewRefresher(f.mon, discard)

	f.mon.RecordSuccess(ctx, "t1", "getJob", time.Second, nil)

	if n := r.Flush(ctx); n != 0 {
		t.Errorf("Flush = %d, want 0", n)
	}
	if got := r.Pending(); len(got) != 1 || got[0] != "t1" {
		t.Errorf("Pending = %v, want [t1]", got)
	}

	snaps.err = nil
	if n := r.Flush(ctx); n != 1 {
		t.Errorf("retry Flush = %d, want 1", n)
	}
}

func TestRefresher_RefreshNow(t *testing.T) {
	ctx := context.Background()
	snaps := newStubSnapshots()
	f := newFixture(t, DefaultConfig(), WithSnapshotStores(snaps))
	r := NewRefresher(f.mon, discard)

	h, err := r.RefreshNow(ctx, "idle")
	if err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if h.Status != domain.HealthUnknown {
		t.Errorf("Status = %s, want unknown", h.Status)
	}
	if _, ok := snaps.saved["idle"]; !ok {
		t.Error("snapshot not written")
	}
}

func TestRefresher_StartFlushesOnStop(t *testing.T) {
	snaps := newStubSnapshots()
	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Hour
	f := newFixture(t, cfg, WithSnapshotStores(snaps))
	r := NewRefresher(f.mon, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	f.mon.RecordSuccess(context.Background(), "t1", "getJob", time.Second, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresher did not stop")
	}
	if _, ok := snaps.saved["t1"]; !ok {
		t.Error("pending snapshot not flushed on stop")
	}
}

// nopSnapshots discards every snapshot.
type nopSnapshots struct{}

func (nopSnapshots) SaveHealth(ctx context.Context, h *domain.ModelHealth) error { return nil }
func (nopSnapshots) LoadHealth(ctx context.Context, id string) (*domain.ModelHealth, error) {
	return nil, nil
}
