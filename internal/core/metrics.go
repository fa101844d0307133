package core

import (
	"context"
	"datamapper/pkg/domain"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Compile-time contract assertion ensuring the decorator stays a persister.
var _ domain.Persister = (*InstrumentedPersister)(nil)

const (
	resultOK    = "ok"
	resultError = "error"
)

// InstrumentedPersister records call counts and latency for every persister
// operation. Errors pass through untouched.
type InstrumentedPersister struct {
	next      domain.Persister
	calls     *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewInstrumentedPersister wraps next and registers its collectors with reg.
// Collectors already registered by an earlier wrapper are reused.
func NewInstrumentedPersister(next domain.Persister, reg prometheus.Registerer) (*InstrumentedPersister, error) {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datamapper",
		Subsystem: "persister",
		Name:      "operations_total",
		Help:      "Persister operations by outcome.",
	}, []string{"operation", "result"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datamapper",
		Subsystem: "persister",
		Name:      "operation_duration_seconds",
		Help:      "Persister operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	if reg != nil {
		var err error
		if calls, err = register(reg, calls); err != nil {
			return nil, err
		}
		if durations, err = register(reg, durations); err != nil {
			return nil, err
		}
	}
	return &InstrumentedPersister{next: next, calls: calls, durations: durations}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Unwrap returns the decorated persister.
func (p *InstrumentedPersister) Unwrap() domain.Persister { return p.next }

func (p *InstrumentedPersister) observe(operation string, start time.Time, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	p.calls.WithLabelValues(operation, result).Inc()
	p.durations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (p *InstrumentedPersister) SetupEntityMetadata(md domain.EntityMetadata) error {
	start := time.Now()
	err := p.next.SetupEntityMetadata(md)
	p.observe("setup_entity_metadata", start, err)
	return err
}

func (p *InstrumentedPersister) Insert(ctx context.Context, table string, entities ...domain.Entity) (domain.Entity, error) {
	start := time.Now()
	out, err := p.next.Insert(ctx, table, entities...)
	p.observe("insert", start, err)
	return out, err
}

func (p *InstrumentedPersister) Update(ctx context.Context, table string, entity domain.Entity) (domain.Entity, error) {
	start := time.Now()
	out, err := p.next.Update(ctx, table, entity)
	p.observe("update", start, err)
	return out, err
}

func (p *InstrumentedPersister) FindByID(ctx context.Context, table string, id any) (domain.Entity, bool, error) {
	start := time.Now()
	out, ok, err := p.next.FindByID(ctx, table, id)
	p.observe("find_by_id", start, err)
	return out, ok, err
}

func (p *InstrumentedPersister) FindByProperty(ctx context.Context, table, property string, value any) (domain.Entity, bool, error) {
	start := time.Now()
	out, ok, err := p.next.FindByProperty(ctx, table, property, value)
	p.observe("find_by_property", start, err)
	return out, ok, err
}

func (p *InstrumentedPersister) FindAllByID(ctx context.Context, table string, ids ...any) ([]domain.Entity, error) {
	start := time.Now()
	out, err := p.next.FindAllByID(ctx, table, ids...)
	p.observe("find_all_by_id", start, err)
	return out, err
}

func (p *InstrumentedPersister) FindAllByProperty(ctx context.Context, table, property string, value any) ([]domain.Entity, error) {
	start := time.Now()
	out, err := p.next.FindAllByProperty(ctx, table, property, value)
	p.observe("find_all_by_property", start, err)
	return out, err
}

func (p *InstrumentedPersister) FindAll(ctx context.Context, table string) ([]domain.Entity, error) {
	start := time.Now()
	out, err := p.next.FindAll(ctx, table)
	p.observe("find_all", start, err)
	return out, err
}

func (p *InstrumentedPersister) DeleteByID(ctx context.Context, table string, id any) error {
	start := time.Now()
	err := p.next.DeleteByID(ctx, table, id)
	p.observe("delete_by_id", start, err)
	return err
}

func (p *InstrumentedPersister) DeleteAllByID(ctx context.Context, table string, ids ...any) error {
	start := time.Now()
	err := p.next.DeleteAllByID(ctx, table, ids...)
	p.observe("delete_all_by_id", start, err)
	return err
}

func (p *InstrumentedPersister) DeleteAllByProperty(ctx context.Context, table, property string, value any) error {
	start := time.Now()
	err := p.next.DeleteAllByProperty(ctx, table, property, value)
	p.observe("delete_all_by_property", start, err)
	return err
}

func (p *InstrumentedPersister) DeleteAll(ctx context.Context, table string) error {
	start := time.Now()
	err := p.next.DeleteAll(ctx, table)
	p.observe("delete_all", start, err)
	return err
}

func (p *InstrumentedPersister) Count(ctx context.Context, table string) (int, error) {
	start := time.Now()
	n, err := p.next.Count(ctx, table)
	p.observe("count", start, err)
	return n, err
}

func (p *InstrumentedPersister) CountByProperty(ctx context.Context, table, property string, value any) (int, error) {
	start := time.Now()
	n, err := p.next.CountByProperty(ctx, table, property, value)
	p.observe("count_by_property", start, err)
	return n, err
}

func (p *InstrumentedPersister) ExistsByProperty(ctx context.Context, table, property string, value any) (bool, error) {
	start := time.Now()
	ok, err := p.next.ExistsByProperty(ctx, table, property, value)
	p.observe("exists_by_property", start, err)
	return ok, err
}

func (p *InstrumentedPersister) Destroy(ctx context.Context) error {
	start := time.Now()
	err := p.next.Destroy(ctx)
	p.observe("destroy", start, err)
	return err
}
