package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/experience-booking/internal/application"
	"github.com/example/experience-booking/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Settings    application.SiteSettings
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults: the reference
// clock, "id" prefixed identifiers and UTC/USD site settings.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Settings:    application.NewStaticSettings(time.UTC, "USD"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Settings == nil {
		factory.Settings = application.NewStaticSettings(time.UTC, "USD")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithSettings overrides the site settings handed to every service.
func WithSettings(settings application.SiteSettings) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Settings = settings
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services bundles the application services built over one store and cache.
type Services struct {
	Availability *application.AvailabilityService
	Capacity     *application.CapacityService
	Pricing      *application.PricingService
	Experiences  *application.ExperienceService
}

// NewServices builds every application service over store. A nil cache gets a
// small LRU cache so catalog reads behave like production.
func (f *ServiceFactory) NewServices(store persistence.Store, cache application.CatalogCache) Services {
	if cache == nil {
		cache = application.NewLRUCatalogCache(32, time.Minute)
	}
	ids := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()

	return Services{
		Availability: application.NewAvailabilityServiceWithLogger(application.AvailabilityDeps{
			Slots:        store,
			Reservations: store,
			Experiences:  store,
			Cache:        cache,
			Settings:     f.Settings,
			IDGenerator:  ids,
			Now:          now,
		}, f.Logger),
		Capacity: application.NewCapacityServiceWithLogger(application.CapacityDeps{
			Slots:        store,
			Reservations: store,
			Experiences:  store,
			Cache:        cache,
			Settings:     f.Settings,
			IDGenerator:  ids,
			Now:          now,
		}, f.Logger),
		Pricing:     application.NewPricingServiceWithLogger(store, store, cache, f.Settings, f.Logger),
		Experiences: application.NewExperienceServiceWithLogger(store, cache, f.Settings, now, f.Logger),
	}
}
