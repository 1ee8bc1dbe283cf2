package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/repository"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// PurchaseService lets users unlock materials.
type PurchaseService struct {
	purchases repository.PurchaseRepository
	materials repository.MaterialRepository
	events    events.Dispatcher
	logger    *zap.Logger
}

func NewPurchaseService(purchases repository.PurchaseRepository, materials repository.MaterialRepository, dispatcher events.Dispatcher, logger *zap.Logger) *PurchaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseService{purchases: purchases, materials: materials, events: dispatcher, logger: logger}
}

// Purchase records that userID bought materialID. Repeating it returns the
// existing record with created=false.
func (s *PurchaseService) Purchase(ctx context.Context, userID, materialID string) (_ *domain.Purchase, created bool, err error) {
	ctx, span := startSpan(ctx, "purchase.create", attribute.String("material_id", materialID))
	defer func() { endSpan(span, err) }()

	if _, err := s.materials.GetByID(ctx, materialID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperrors.NewNotFound("material", nil)
		}
		return nil, false, apperrors.NewInternalError(err)
	}

	purchase := &domain.Purchase{UserID: userID, MaterialID: materialID}
	created, err = s.purchases.Create(ctx, purchase)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperrors.NewNotFound("material", nil)
		}
		return nil, false, apperrors.NewInternalError(err)
	}

	if created && s.events != nil {
		actor := events.Actor{Role: domain.RoleUser, ID: userID}
		payload := events.PurchasePayload{PurchaseID: purchase.ID, MaterialID: materialID}
		if err := s.events.Publish(ctx, events.New(events.EventMaterialPurchased, userID, actor, payload)); err != nil {
			s.logger.Warn("event handlers failed", zap.String("event", string(events.EventMaterialPurchased)), zap.Error(err))
		}
	}
	return purchase, created, nil
}

// ListForUser returns the user's purchases, newest first.
func (s *PurchaseService) ListForUser(ctx context.Context, userID string) ([]domain.Purchase, error) {
	purchases, err := s.purchases.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return purchases, nil
}
