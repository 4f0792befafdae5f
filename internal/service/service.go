package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/clock"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/store"
)

const (
	DefaultConflictRetries = 5
	DefaultExpiryWindow    = 45
	tracerName             = "pharmapos/backend/internal/service"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the sale and inventory engine. Every mutating operation runs as
// exactly one unit of work on the repository and is retried as a whole when
// the repository reports a storage conflict.
type Service struct {
	repo       store.Repository
	codes      cache.BarcodeCache
	publisher  events.Publisher
	logger     *zap.Logger
	tracer     trace.Tracer
	clock      clock.Clock
	maxRetries int
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithBarcodeCache(c cache.BarcodeCache) Option {
	return func(s *Service) {
		if c != nil {
			s.codes = c
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithConflictRetries bounds how many times a conflicting unit is re-run.
// Zero disables retries.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		codes:      cache.NoopBarcodeCache{},
		publisher:  events.NoopPublisher{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		clock:      clock.NewSystem(),
		maxRetries: DefaultConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newConflictBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	b.Reset()
	return b
}

// atomic runs fn as one unit of work. fn may run more than once, so it must
// not leak state between attempts.
func (s *Service) atomic(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(newConflictBackOff(), uint64(s.maxRetries)), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := s.repo.RunAtomic(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrStorageConflict) {
			s.logger.Debug("storage conflict, retrying unit",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (s *Service) startSpan(ctx context.Context, name string, pharmacyID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("pharmacy.id", pharmacyID))
	return s.tracer.Start(ctx, "service."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", domain.KindOf(err).String()))
	}
	span.End()
}

// publish reports a committed change. Failures are logged, never returned:
// the state change has already happened.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("pharmacy_id", event.PharmacyID),
			zap.Error(err),
		)
	}
}

func requireTenant(pharmacyID string) error {
	if strings.TrimSpace(pharmacyID) == "" {
		return domain.Errorf(domain.KindInvalidInput, "pharmacy id is required")
	}
	return nil
}

func requireID(kind string, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.Errorf(domain.KindInvalidInput, "%s id is required", kind)
	}
	return id, nil
}

func actorUserID(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.UserID
}
