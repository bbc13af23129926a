// Package di assembles the runtime dependency graph: the session store,
// the upstream clients, the service layer and the HTTP router.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/backend"
	"github.com/lojafacil/engine/internal/handlers"
	"github.com/lojafacil/engine/internal/platform/auth"
	"github.com/lojafacil/engine/internal/platform/cache"
	"github.com/lojafacil/engine/internal/platform/config"
	"github.com/lojafacil/engine/internal/platform/jobs"
	"github.com/lojafacil/engine/internal/platform/observability"
	cacherepo "github.com/lojafacil/engine/internal/repositories/cache"
	"github.com/lojafacil/engine/internal/services"
)

// Services bundles the service layer the handlers are wired against.
type Services struct {
	Catalog  *services.CatalogService
	Cart     *services.CartService
	Shipping *services.ShippingService
	Identity *services.IdentityService
	Checkout *services.CheckoutService
	Orders   *services.OrderHistoryService
}

// Container wires the session store, upstream clients, services and the
// router for runtime use.
type Container struct {
	Config   config.Config
	Store    cache.Store
	Services Services
	Router   chi.Router

	closers []func(ctx context.Context) error
}

// NewContainer constructs the runtime dependencies. Without a Firestore
// project the session store falls back to the in-process memory store,
// which is what tests and local runs use.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg}

	store, err := c.buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store

	sessions, err := cacherepo.NewSessionStateRepository(cacherepo.SessionStateRepositoryDeps{
		Store:            store,
		ClientSessionTTL: cfg.Session.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build session repository: %w", err)
	}

	catalogRepo, err := cacherepo.NewCatalogRepository(cacherepo.CatalogRepositoryDeps{Store: store})
	if err != nil {
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}

	backendClient, err := backend.NewClient(backend.ClientDeps{
		BaseURL:    cfg.Backend.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Backend.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("build backend client: %w", err)
	}

	lookup := address.NewClient(address.ClientDeps{
		BaseURL:    cfg.Lookup.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Lookup.Timeout},
	})

	tokens, err := auth.NewSessionTokenManager(auth.SessionTokenManagerDeps{
		Secret: cfg.Session.TokenSecret,
		TTL:    cfg.Session.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build token manager: %w", err)
	}

	publisher, err := c.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(sessions, catalogRepo, backendClient, lookup, tokens, publisher)
	if err != nil {
		return nil, err
	}
	c.Services = svc

	c.Router = buildRouter(cfg, logger, svc, func(ctx context.Context) error {
		_, err := catalogRepo.ConfigVersion(ctx)
		return err
	})

	return c, nil
}

// Close releases the Firestore and Pub/Sub clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.Firestore.ProjectID == "" {
		logger.Info("no firestore project configured, using in-memory session store")
		return cache.NewMemoryStore(), nil
	}

	if cfg.Firestore.EmulatorHost != "" {
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
			return nil, fmt.Errorf("set firestore emulator host: %w", err)
		}
	}

	client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build firestore client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error {
		return client.Close()
	})

	var opts []cache.FirestoreOption
	if cfg.Firestore.Collection != "" {
		opts = append(opts, cache.WithCollection(cfg.Firestore.Collection))
	}
	return cache.NewFirestoreStore(client, opts...), nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.Config) (services.OrderPublisher, error) {
	if cfg.Jobs.Topic == "" || cfg.Jobs.ProjectID == "" {
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.Jobs.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Jobs.Topic)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})

	publisher, err := jobs.NewPubSubOrderPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("build order publisher: %w", err)
	}
	return orderPublisherAdapter{inner: publisher}, nil
}

// orderPublisherAdapter drops the broker-assigned message ID, which the
// checkout flow has no use for.
type orderPublisherAdapter struct {
	inner *jobs.PubSubOrderPublisher
}

func (a orderPublisherAdapter) PublishOrderRecorded(ctx context.Context, msg jobs.OrderRecordedMessage) error {
	_, err := a.inner.PublishOrderRecorded(ctx, msg)
	return err
}

func buildServices(
	sessions *cacherepo.SessionStateRepository,
	catalogRepo *cacherepo.CatalogRepository,
	backendClient *backend.Client,
	lookup *address.Client,
	tokens *auth.SessionTokenManager,
	publisher services.OrderPublisher,
) (Services, error) {
	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: catalogRepo,
		Backend:    backendClient,
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	cart, err := services.NewCartService(services.CartServiceDeps{
		Sessions: sessions,
		Catalog:  catalog,
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	shipping, err := services.NewShippingService(services.ShippingServiceDeps{
		Sessions: sessions,
		Backend:  backendClient,
		Catalog:  catalog,
		Config:   catalog,
		Lookup:   lookup,
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}

	identity, err := services.NewIdentityService(services.IdentityServiceDeps{
		Sessions: sessions,
		Backend:  backendClient,
		Tokens:   tokens,
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build identity service: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Sessions:  sessions,
		Shipping:  shipping,
		Config:    catalog,
		Backend:   backendClient,
		Publisher: publisher,
		Clock:     time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	orders, err := services.NewOrderHistoryService(services.OrderHistoryServiceDeps{
		Sessions: sessions,
		Backend:  backendClient,
		Tokens:   tokens,
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order history service: %w", err)
	}

	return Services{
		Catalog:  catalog,
		Cart:     cart,
		Shipping: shipping,
		Identity: identity,
		Checkout: checkout,
		Orders:   orders,
	}, nil
}

func buildRouter(cfg config.Config, logger *zap.Logger, svc Services, ready func(ctx context.Context) error) chi.Router {
	projectID := cfg.Firestore.ProjectID

	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	cartHandlers := handlers.NewCartHandlers(svc.Cart)
	shippingHandlers := handlers.NewShippingHandlers(svc.Shipping, cfg.RateLimits.QuotePerMinute)
	identityHandlers := handlers.NewIdentityHandlers(svc.Identity)
	checkoutHandlers := handlers.NewCheckoutHandlers(svc.Checkout)
	orderHandlers := handlers.NewOrderHandlers(svc.Orders)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithGlobalRateLimit(cfg.RateLimits.DefaultPerMinute),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(ready)),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithIdentityRoutes(identityHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)
}
