package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/kiggyshop-backend/pkg/pagination"
)

const maxTrackingNumberLen = 64

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the admin surface over recorded orders.
type Service interface {
	List(ctx context.Context, filter enums.OrderFilter, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, id uuid.UUID) (*OrderDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkShipped(ctx context.Context, id uuid.UUID, trackingNumber string) (*OrderDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the order admin service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: publisher, logg: logg, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, filter enums.OrderFilter, params pagination.Params) (*OrderList, error) {
	if filter == "" {
		filter = enums.OrderFilterAll
	}
	if !filter.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order filter").
			WithDetails(map[string]string{"filter": "must be one of all, shipped, unshipped"})
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, next := pagination.Split(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, toDTO(row))
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := toDTO(*order)
	return &dto, nil
}

// Delete removes an order together with its line items and address.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = s.repo.WithTx(tx).Delete(ctx, id)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, id.String()), "order deleted")
	return nil
}

// MarkShipped records a tracking number once. A second call fails and leaves
// the stored tracking number untouched.
func (s *service) MarkShipped(ctx context.Context, id uuid.UUID, trackingNumber string) (*OrderDTO, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" || len(trackingNumber) > maxTrackingNumberLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid tracking number").
			WithDetails(map[string]string{"tracking_number": fmt.Sprintf("required, at most %d characters", maxTrackingNumberLen)})
	}

	var result OrderDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shippedAt := s.now().UTC()

		updated, err := repo.MarkShipped(ctx, id, trackingNumber, shippedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
		}
		if updated == 0 {
			exists, err := repo.Exists(ctx, id)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			if !exists {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped")
		}

		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderShippedEvent{
				OrderID:        order.ID,
				Name:           order.Name,
				Email:          order.Email,
				TrackingNumber: trackingNumber,
				ShippedAt:      shippedAt,
			},
			OccurredAt: shippedAt,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order shipped")
		}

		result = toDTO(*order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":        id.String(),
		"tracking_number": trackingNumber,
	}), "order marked shipped")
	return &result, nil
}
