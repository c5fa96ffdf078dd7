package daemon_test

import (
	"context"
	"testing"
	"time"

	"claimlens/internal/daemon"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if len(status.Stages) == 0 {
		t.Fatal("expected stage health while running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonQueueOperations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx := context.Background()
	job, err := d.Submit(ctx, "https://example.com/episode.mp3", 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	listed, err := d.ListJobs(ctx, []jobs.Status{jobs.StatusQueued})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != job.ID {
		t.Fatalf("expected the submitted job in the queued list, got %d jobs", len(listed))
	}

	fetched, err := d.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if fetched == nil || fetched.SourceRef != job.SourceRef {
		t.Fatalf("GetJob returned %+v", fetched)
	}

	health, err := d.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Queued != 1 {
		t.Fatalf("expected one queued job, got %d", health.Queued)
	}

	dbHealth, err := d.DatabaseHealth(ctx)
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.TableExists {
		t.Fatalf("unexpected database health: %+v", dbHealth)
	}

	removed, err := d.RemoveJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if !removed {
		t.Fatal("expected RemoveJob to delete the job")
	}

	cleared, err := d.ClearQueue(ctx)
	if err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("expected empty queue after removal, cleared %d", cleared)
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Fatal("expected no notification without a configured topic")
	}
	if detail == "" {
		t.Fatal("expected a human readable detail message")
	}
}
