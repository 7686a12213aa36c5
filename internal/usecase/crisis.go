package usecase

import (
	"context"
	"errors"
	"strings"

	"wellness-agent/internal/crisis"
	"wellness-agent/internal/domain"
)

type CrisisResolver interface {
	Resolve(ctx context.Context, id string, resolver domain.Identity) (domain.CrisisEvent, error)
}

// CrisisService exposes the explicit resolution action.
type CrisisService struct {
	ledger CrisisResolver
}

func NewCrisisService(ledger CrisisResolver) (*CrisisService, error) {
	if ledger == nil {
		return nil, errors.New("usecase: crisis ledger must not be nil")
	}
	return &CrisisService{ledger: ledger}, nil
}

// Resolve marks an event resolved. Repeating it is not an error.
func (s *CrisisService) Resolve(ctx context.Context, resolver domain.Identity, id string) (domain.CrisisEvent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CrisisEvent{}, newError(ErrorValidation, "missing_event_id", nil)
	}
	ev, err := s.ledger.Resolve(ctx, id, resolver)
	switch {
	case err == nil:
		return ev, nil
	case errors.Is(err, crisis.ErrUnauthorized):
		return domain.CrisisEvent{}, newError(ErrorEntitlementDenied, "RESOLVER_ROLE_REQUIRED", err)
	case errors.Is(err, domain.ErrNotFound):
		return domain.CrisisEvent{}, newError(ErrorNotFound, "crisis_event_not_found", err)
	default:
		return domain.CrisisEvent{}, newError(ErrorPersistence, "crisis_event_store_error", err)
	}
}
