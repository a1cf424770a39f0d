package stock

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
)

const maxTitleLen = 200

// Service exposes catalog reads and admin stock management.
type Service interface {
	List(ctx context.Context) ([]ItemDTO, error)
	Get(ctx context.Context, id int64) (*ItemDTO, error)
	Upsert(ctx context.Context, input UpsertInput) (*ItemDTO, bool, error)
	Delete(ctx context.Context, id int64) error
}

type service struct {
	repo     Repository
	currency string
}

// NewService constructs the stock service.
func NewService(repo Repository, currency string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if strings.TrimSpace(currency) == "" {
		currency = "usd"
	}
	return &service{repo: repo, currency: currency}, nil
}

func (s *service) List(ctx context.Context) ([]ItemDTO, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock")
	}
	out := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toDTO(item, s.currency))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id int64) (*ItemDTO, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	dto := toDTO(*item, s.currency)
	return &dto, nil
}

// Upsert creates or replaces an item. The bool reports whether it was created.
func (s *service) Upsert(ctx context.Context, input UpsertInput) (*ItemDTO, bool, error) {
	kind, err := validateUpsert(input)
	if err != nil {
		return nil, false, err
	}

	item := &models.Item{
		Title:       strings.TrimSpace(input.Title),
		Kind:        kind,
		Description: strings.TrimSpace(input.Description),
		Quantity:    input.Quantity,
	}
	created := input.ID == nil
	if !created {
		existing, err := s.repo.Get(ctx, *input.ID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
		}
		if existing == nil {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Save(ctx, item); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save item")
	}
	dto := toDTO(*item, s.currency)
	return &dto, created, nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete item")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return nil
}

// validateUpsert collects every field problem so the admin sees them at once.
func validateUpsert(input UpsertInput) (enums.ItemKind, error) {
	var errs error
	details := map[string]string{}

	title := strings.TrimSpace(input.Title)
	switch {
	case title == "":
		details["title"] = "title is required"
	case len(title) > maxTitleLen:
		details["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLen)
	}
	if details["title"] != "" {
		errs = multierr.Append(errs, fmt.Errorf("title: %s", details["title"]))
	}

	kind, err := enums.ParseItemKind(input.Kind)
	if err != nil {
		details["kind"] = err.Error()
		errs = multierr.Append(errs, fmt.Errorf("kind: %w", err))
	}

	if input.Quantity < 0 {
		details["quantity"] = "quantity must be >= 0"
		errs = multierr.Append(errs, fmt.Errorf("quantity: %s", details["quantity"]))
	}

	if input.ID != nil && *input.ID <= 0 {
		details["id"] = "id must be positive"
		errs = multierr.Append(errs, fmt.Errorf("id: %s", details["id"]))
	}

	if errs != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, errs, "invalid item").WithDetails(details)
	}
	return kind, nil
}
