package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestScheduler_TickRunsEnabledPipelines(t *testing.T) {
	rig := newTestRig(t, time.Now(), nil)

	sched := NewScheduler(rig.orch, time.Hour, nil)
	sched.tick(context.Background())

	runs, err := rig.store.ListPipelineRuns(context.Background(), rig.p.ID, 10)
	if err != nil {
		t.Fatalf("ListPipelineRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one recorded run after a tick, got %d", len(runs))
	}
}

func TestScheduler_StartStopIsIdempotent(t *testing.T) {
	rig := newTestRig(t, time.Now(), nil)
	sched := NewScheduler(rig.orch, time.Hour, nil)

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestScheduler_Descriptor(t *testing.T) {
	rig := newTestRig(t, time.Now(), nil)
	sched := NewScheduler(rig.orch, 0, nil)
	d := sched.Descriptor()
	if d.Name != sched.Name() {
		t.Errorf("descriptor name %q does not match Name() %q", d.Name, sched.Name())
	}
}
