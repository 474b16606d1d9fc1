package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/craftfolio/api/internal/authz"
	"github.com/craftfolio/api/internal/platform/config"
	"github.com/craftfolio/api/internal/platform/observability"
	"github.com/craftfolio/api/internal/platform/textutil"
	"github.com/craftfolio/api/internal/repositories"
	"github.com/craftfolio/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Notifications services.NotificationService
	Users         services.UserService
}

// RemotePublisher is the outbound event sink (Pub/Sub in production). The
// returned message id is informational only.
type RemotePublisher interface {
	PublishOrderEvent(ctx context.Context, event services.OrderEvent) (string, error)
}

// Options carries optional wiring for NewContainer. Zero values fall back to
// sensible defaults: a no-op remote publisher and the global clock.
type Options struct {
	Logger *zap.Logger
	Remote RemotePublisher
	Clock  func() time.Time
}

// Container wires repositories, services, and event plumbing for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, opts Options) (Services, error) {
	var svc Services

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var logFn func(ctx context.Context, event string, fields map[string]any)
	if opts.Logger != nil {
		logFn = observability.EventLogger(opts.Logger.Named("services"))
	}

	resolver := authz.NewResolver()
	sanitizer := textutil.NewSanitizer()

	if cfg.Features.EnableNotifications {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Notifications: reg.Notifications(),
			Users:         reg.Users(),
			Resolver:      resolver,
			Clock:         clock,
			Sanitize:      sanitizer.CleanText,
			Logger:        logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	events := newEventFanout(svc.Notifications, opts.Remote)

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Users:      reg.Users(),
		Counters:   reg.Counters(),
		Resolver:   resolver,
		UnitOfWork: reg,
		Clock:      clock,
		Events:     events,
		Sanitize:   sanitizer.CleanText,
		Logger:     logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:    reg.Users(),
		Resolver: resolver,
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	return svc, nil
}

// eventFanout delivers every order event to the in-process notification
// service and forwards it to the remote publisher. Failures from either sink
// are joined; the order service treats publish errors as log-only.
type eventFanout struct {
	notifications services.NotificationService
	remote        RemotePublisher
}

func newEventFanout(notifications services.NotificationService, remote RemotePublisher) services.OrderEventPublisher {
	return &eventFanout{
		notifications: notifications,
		remote:        remote,
	}
}

func (f *eventFanout) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	var errs []error
	if f.notifications != nil {
		if err := f.notifications.HandleOrderEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notification fan-out: %w", err))
		}
	}
	if f.remote != nil {
		if _, err := f.remote.PublishOrderEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("remote publish: %w", err))
		}
	}
	return errors.Join(errs...)
}
