// Package provider picks an inference provider from the broker's catalogue
// and prepares it for use.
package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/model"
)

var (
	// ErrNoProviderAvailable is returned when the catalogue is empty or
	// nothing matches the criteria.
	ErrNoProviderAvailable = eris.New("provider: no provider available")
	// ErrAcknowledgeFailed wraps a failed signer acknowledgement.
	ErrAcknowledgeFailed = eris.New("provider: acknowledge failed")
)

// Strategy names a selection policy.
type Strategy string

const (
	// StrategyFirst takes the first listed service.
	StrategyFirst Strategy = "first"
	// StrategyModelContains takes the first service whose model contains a substring.
	StrategyModelContains Strategy = "model_contains"
	// StrategyProviderID takes the service of an explicit provider.
	StrategyProviderID Strategy = "provider_id"
	// StrategyCheapest takes the service with the lowest minimum fee.
	StrategyCheapest Strategy = "cheapest"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyFirst, StrategyModelContains, StrategyProviderID, StrategyCheapest:
		return st, nil
	case "":
		return StrategyFirst, nil
	default:
		return "", eris.Errorf("provider: unknown selection strategy %q", s)
	}
}

// Criteria selects one service.
type Criteria struct {
	Strategy       Strategy
	ModelSubstring string
	ProviderID     string
}

// Selection is a ready-to-call provider.
type Selection struct {
	Provider string
	Endpoint string
	Model    string
	Service  model.Service
}

// Catalogue is the inference side of the compute broker.
type Catalogue interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	Acknowledge(ctx context.Context, provider string) error
	ServiceMetadata(ctx context.Context, provider string) (model.ServiceMetadata, error)
}

// Selector lists, filters and acknowledges providers.
type Selector struct {
	catalogue Catalogue
}

// NewSelector creates a Selector.
func NewSelector(c Catalogue) *Selector {
	return &Selector{catalogue: c}
}

// Services returns the current catalogue. It is never cached.
func (s *Selector) Services(ctx context.Context) ([]model.Service, error) {
	services, err := s.catalogue.ListServices(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "provider: list services")
	}
	return services, nil
}

// Select picks a service by criteria, acknowledges its provider and
// resolves its endpoint.
func (s *Selector) Select(ctx context.Context, c Criteria) (Selection, error) {
	services, err := s.Services(ctx)
	if err != nil {
		return Selection{}, err
	}

	svc, ok := Pick(services, c)
	if !ok {
		return Selection{}, eris.Wrapf(ErrNoProviderAvailable, "%d services, strategy %s", len(services), c.Strategy)
	}

	log := zap.L().With(zap.String("component", "provider"), zap.String("provider", svc.Provider), zap.String("model", svc.Model))
	log.Info("provider: selected")

	if err := s.catalogue.Acknowledge(ctx, svc.Provider); err != nil {
		return Selection{}, eris.Wrapf(ErrAcknowledgeFailed, "%s: %s", svc.Provider, err.Error())
	}

	meta, err := s.catalogue.ServiceMetadata(ctx, svc.Provider)
	if err != nil {
		return Selection{}, eris.Wrap(err, "provider: service metadata")
	}

	return Selection{
		Provider: svc.Provider,
		Endpoint: meta.Endpoint,
		Model:    meta.Model,
		Service:  svc,
	}, nil
}

// Pick applies the criteria to services in list order. Ties go to the
// earlier entry.
func Pick(services []model.Service, c Criteria) (model.Service, bool) {
	if len(services) == 0 {
		return model.Service{}, false
	}

	switch c.Strategy {
	case StrategyModelContains:
		needle := strings.ToLower(c.ModelSubstring)
		for _, svc := range services {
			if strings.Contains(strings.ToLower(svc.Model), needle) {
				return svc, true
			}
		}
	case StrategyProviderID:
		for _, svc := range services {
			if strings.EqualFold(svc.Provider, c.ProviderID) {
				return svc, true
			}
		}
	case StrategyCheapest:
		best := 0
		for i := 1; i < len(services); i++ {
			if services[i].MinFee().Cmp(services[best].MinFee()) < 0 {
				best = i
			}
		}
		return services[best], true
	default:
		return services[0], true
	}
	return model.Service{}, false
}
