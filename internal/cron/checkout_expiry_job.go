package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

type CheckoutExpiryJobParams struct {
	Logger     *logger.Logger
	Repository checkoutExpiryRepo
	// Grace delays expiry past expires_at so a late webhook for a session the
	// provider just closed still finds it pending.
	Grace time.Duration
}

type checkoutExpiryRepo interface {
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewCheckoutExpiryJob moves pending checkout sessions past their expiry to
// expired. Fulfilled sessions are never touched.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("checkout session repository required")
	}
	if params.Grace < 0 {
		return nil, fmt.Errorf("grace must be non-negative")
	}
	return &checkoutExpiryJob{
		logg:  params.Logger,
		repo:  params.Repository,
		grace: params.Grace,
		now:   time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg  *logger.Logger
	repo  checkoutExpiryRepo
	grace time.Duration
	now   func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "checkout_session_expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	expired, err := j.repo.ExpirePendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire checkout sessions: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_expired": expired,
	}), "checkout session expiry complete")
	return nil
}
