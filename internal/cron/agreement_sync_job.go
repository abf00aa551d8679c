package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bouncebros/bouncebros-backend/internal/agreements"
)

const defaultSyncCallTimeout = 15 * time.Second

type agreementSyncer interface {
	SyncAll(ctx context.Context) (agreements.SyncSummary, error)
}

// AgreementSyncJobParams configure the reconciliation job.
type AgreementSyncJobParams struct {
	Agreements  agreementSyncer
	CallTimeout time.Duration
}

// NewAgreementSyncJob builds the job that polls the e-sign provider for
// agreements still out for signature, catching webhooks the provider failed
// to deliver.
func NewAgreementSyncJob(params AgreementSyncJobParams) (Job, error) {
	if params.Agreements == nil {
		return nil, fmt.Errorf("agreements service required")
	}
	timeout := params.CallTimeout
	if timeout <= 0 {
		timeout = defaultSyncCallTimeout
	}
	return &agreementSyncJob{
		agreements: params.Agreements,
		timeout:    timeout,
	}, nil
}

type agreementSyncJob struct {
	agreements agreementSyncer
	timeout    time.Duration
}

func (j *agreementSyncJob) Name() string { return "agreement-sync" }

func (j *agreementSyncJob) Run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if _, err := j.agreements.SyncAll(runCtx); err != nil {
		return fmt.Errorf("agreement sync: %w", err)
	}
	return nil
}
