package app

import (
	"context"
	"errors"

	"github.com/herodrop/rewards-service/internal/advisor"
	"github.com/herodrop/rewards-service/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("action not allowed in the current redemption step")
	ErrSessionNotFound   = errors.New("redemption session not found")
	ErrItemNotFound      = errors.New("redemption item not found")
)

// ItemCatalog looks up redemption items.
type ItemCatalog interface {
	Item(id string) (domain.RedemptionItem, bool)
}

// LocationResolver confirms that a selected facility or vendor exists.
type LocationResolver interface {
	ResolveFacility(name, address string) (domain.Location, bool)
	ResolveVendor(name, address string) (domain.Location, bool)
}

// TimeAdvisor suggests a visit window for a service redemption. The
// suggestion is always usable; a non-nil error reports that it is the fallback.
type TimeAdvisor interface {
	SuggestOrFallback(ctx context.Context, facilityName, serviceName string) (advisor.Suggestion, error)
}

// MessageComposer writes SMS text.
type MessageComposer interface {
	Compose(ctx context.Context, intent domain.NotificationIntent) (domain.ComposedMessage, error)
	ComposeNextOfKin(ctx context.Context, donorName, kinName, hospital string) (domain.ComposedMessage, error)
}

// MessageDispatcher sends SMS text to a phone number.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, to, message string) (domain.DeliveryResult, error)
}

// StateStore is the per-donor key-value store.
type StateStore interface {
	Put(ctx context.Context, owner, key string, value any) error
	Get(ctx context.Context, owner, key string, dst any) error
	Delete(ctx context.Context, owner, key string) error
}
