package cron

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRetentionRepo struct {
	cutoff  time.Time
	deleted int64
}

func (f *fakeRetentionRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	repo := &fakeRetentionRepo{deleted: 7}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:         fakeTxRunner{},
		Repository: repo,
		Retention:  10,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantCutoff := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if diff := repo.cutoff.Sub(wantCutoff); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("cutoff %v not near expected %v", repo.cutoff, wantCutoff)
	}
}
