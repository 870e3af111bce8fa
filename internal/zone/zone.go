// Package zone classifies origin/destination pairs into shipping zones.
package zone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned when either city text is blank.
var ErrInvalidInput = errors.New("origin and destination cities are required")

// Zone is a coarse shipping-distance class.
type Zone string

const (
	WithinCity    Zone = "within-city"
	SameZone      Zone = "same-zone"
	DifferentZone Zone = "different-zone"
)

// CityLister returns the reference city table in table order.
type CityLister interface {
	List(ctx context.Context) ([]domain.City, error)
}

// Result is a resolved zone. Found is false when either side matched no
// reference city; Zone is then DifferentZone.
type Result struct {
	Zone              Zone   `json:"zone"`
	Found             bool   `json:"found"`
	Origin            string `json:"origin,omitempty"`
	Destination       string `json:"destination,omitempty"`
	OriginRegion      string `json:"origin_region,omitempty"`
	DestinationRegion string `json:"destination_region,omitempty"`
}

// Resolver resolves zones against the reference city table.
type Resolver struct {
	cities CityLister
	logger *otelzap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cities CityLister, logger *otelzap.Logger) *Resolver {
	return &Resolver{cities: cities, logger: logger}
}

// Resolve classifies the pair. Each side picks the first reference city whose
// name occurs, case-insensitively, in the input text.
func (r *Resolver) Resolve(ctx context.Context, originText, destinationText string) (*Result, error) {
	if strings.TrimSpace(originText) == "" || strings.TrimSpace(destinationText) == "" {
		return nil, ErrInvalidInput
	}

	cities, err := r.cities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cities: %w", err)
	}

	origin := match(cities, originText)
	destination := match(cities, destinationText)
	if origin == nil || destination == nil {
		r.logger.Ctx(ctx).Info("Zone city not found",
			zap.String("origin", originText),
			zap.String("destination", destinationText),
			zap.Bool("origin_found", origin != nil),
			zap.Bool("destination_found", destination != nil),
		)
		return &Result{Zone: DifferentZone}, nil
	}

	return &Result{
		Zone:              Classify(*origin, *destination),
		Found:             true,
		Origin:            origin.Name,
		Destination:       destination.Name,
		OriginRegion:      origin.Region,
		DestinationRegion: destination.Region,
	}, nil
}

// Classify applies the three tiers to two known cities.
func Classify(origin, destination domain.City) Zone {
	switch {
	case strings.EqualFold(strings.TrimSpace(origin.Name), strings.TrimSpace(destination.Name)):
		return WithinCity
	case strings.EqualFold(strings.TrimSpace(origin.Region), strings.TrimSpace(destination.Region)):
		return SameZone
	default:
		return DifferentZone
	}
}

func match(cities []domain.City, text string) *domain.City {
	needle := strings.ToLower(text)
	for i := range cities {
		name := strings.ToLower(strings.TrimSpace(cities[i].Name))
		if name == "" {
			continue
		}
		if strings.Contains(needle, name) {
			return &cities[i]
		}
	}
	return nil
}
