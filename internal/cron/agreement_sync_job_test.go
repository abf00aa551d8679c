package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bouncebros/bouncebros-backend/internal/agreements"
)

type fakeSyncer struct {
	err   error
	calls int
	ctx   context.Context
}

func (f *fakeSyncer) SyncAll(ctx context.Context) (agreements.SyncSummary, error) {
	f.calls++
	f.ctx = ctx
	return agreements.SyncSummary{}, f.err
}

func TestAgreementSyncJobRunsSync(t *testing.T) {
	syncer := &fakeSyncer{}
	job, err := NewAgreementSyncJob(AgreementSyncJobParams{Agreements: syncer})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "agreement-sync" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected one sync call, got %d", syncer.calls)
	}
	if _, ok := syncer.ctx.Deadline(); !ok {
		t.Fatalf("expected the sync context to carry a deadline")
	}
}

func TestAgreementSyncJobWrapsError(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("provider down")}
	job, err := NewAgreementSyncJob(AgreementSyncJobParams{
		Agreements:  syncer,
		CallTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing sync")
	}
}
