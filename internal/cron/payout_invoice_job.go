package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/payouts-backend/internal/payouts"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
)

const (
	invoiceLockKeyFormat      = "payouts:invoice:%s"
	defaultInvoiceConcurrency = 4
)

type invoiceGenerator interface {
	ClosedPeriods(ctx context.Context, now time.Time) ([]payouts.Period, error)
	PendingOrganizations(ctx context.Context, period payouts.Period) ([]uuid.UUID, error)
	GenerateInvoice(ctx context.Context, input payouts.GenerateInput) (*payouts.GenerateResult, error)
}

type PayoutInvoiceJobParams struct {
	Logger      *logger.Logger
	Payouts     invoiceGenerator
	Locker      *Locker
	Concurrency int
}

// NewPayoutInvoiceJob closes the most recent billing period, and any earlier one still
// holding uninvoiced orders, for every organization with pending activity.
func NewPayoutInvoiceJob(params PayoutInvoiceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultInvoiceConcurrency
	}
	return &payoutInvoiceJob{
		logg:        params.Logger,
		payouts:     params.Payouts,
		locker:      params.Locker,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

type payoutInvoiceJob struct {
	logg        *logger.Logger
	payouts     invoiceGenerator
	locker      *Locker
	concurrency int
	now         func() time.Time
}

func (j *payoutInvoiceJob) Name() string { return "payout-invoices" }

func (j *payoutInvoiceJob) Run(ctx context.Context) error {
	periods, err := j.payouts.ClosedPeriods(ctx, j.now())
	if err != nil {
		return fmt.Errorf("resolve billing periods: %w", err)
	}
	var errs []error
	for _, period := range periods {
		if err := j.runPeriod(ctx, period); err != nil {
			errs = append(errs, fmt.Errorf("period %s: %w", period, err))
		}
	}
	return multierr.Combine(errs...)
}

func (j *payoutInvoiceJob) runPeriod(ctx context.Context, period payouts.Period) error {
	orgIDs, err := j.payouts.PendingOrganizations(ctx, period)
	if err != nil {
		return fmt.Errorf("list pending organizations: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"period":        period.String(),
		"organizations": len(orgIDs),
	})
	if len(orgIDs) == 0 {
		j.logg.Info(logCtx, "no organizations to invoice")
		return nil
	}

	var (
		mu      sync.Mutex
		errs    []error
		tallies = map[string]int{}
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(j.concurrency)
	for _, orgID := range orgIDs {
		group.Go(func() error {
			outcome, err := j.invoiceOrganization(groupCtx, orgID, period)
			mu.Lock()
			defer mu.Unlock()
			tallies[outcome]++
			if err != nil {
				errs = append(errs, fmt.Errorf("organization %s: %w", orgID, err))
			}
			// Errors are collected so sibling organizations keep running.
			return nil
		})
	}
	_ = group.Wait()

	j.logg.Info(j.logg.WithFields(logCtx, map[string]any{
		"created":  tallies["created"],
		"existing": tallies["existing"],
		"skipped":  tallies["skipped"],
		"locked":   tallies["locked"],
		"failed":   tallies["failed"],
	}), "payout invoice run complete")
	return multierr.Combine(errs...)
}

func (j *payoutInvoiceJob) invoiceOrganization(ctx context.Context, orgID uuid.UUID, period payouts.Period) (string, error) {
	lease, err := j.locker.TryAcquire(ctx, fmt.Sprintf(invoiceLockKeyFormat, orgID))
	if err != nil {
		return "failed", err
	}
	if lease == nil {
		return "locked", nil
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			j.logg.Error(j.logg.WithField(ctx, "organization_id", orgID.String()), "failed to release invoice lock", relErr)
		}
	}()

	result, err := j.payouts.GenerateInvoice(ctx, payouts.GenerateInput{
		OrganizationID: orgID,
		Period:         period,
		Actor:          &outbox.ActorRef{Role: string(enums.ActorRoleSystem)},
	})
	if err != nil {
		return "failed", err
	}
	switch {
	case result.Skipped:
		return "skipped", nil
	case result.Existing:
		return "existing", nil
	default:
		return "created", nil
	}
}
