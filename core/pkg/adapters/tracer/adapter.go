// Package tracer provides a generic tracer adapter
// that wraps any tracing library (OpenTelemetry, Jaeger, Zipkin, etc.)
package tracer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Driver is the interface that any tracer must implement
type Driver interface {
	// StartSpan starts a new span
	StartSpan(ctx context.Context, name string, opts ...contracts.SpanOption) (context.Context, SpanDriver)
	// Extract extracts span context from carrier
	Extract(ctx context.Context, carrier contracts.Carrier) context.Context
	// Inject injects span context into carrier
	Inject(ctx context.Context, carrier contracts.Carrier) error
	// Close flushes and closes the tracer
	Close() error
}

// SpanDriver is the interface for spans
type SpanDriver interface {
	End()
	SetName(name string)
	SetStatus(code contracts.SpanStatus, message string)
	SetAttributes(attrs ...contracts.Attribute)
	AddEvent(name string, attrs ...contracts.Attribute)
	RecordError(err error)
	SpanContext() contracts.SpanContext
	IsRecording() bool
}

// Adapter implements contracts.Tracer
type Adapter struct {
	driver      Driver
	serviceName string
}

// New creates a new tracer adapter
func New(driver Driver) *Adapter {
	return &Adapter{
		driver: driver,
	}
}

// WithServiceName sets the service name
func (a *Adapter) WithServiceName(name string) *Adapter {
	a.serviceName = name
	return a
}

// ============ contracts.Tracer Implementation ============

func (a *Adapter) Start(ctx context.Context, name string, opts ...contracts.SpanOption) (context.Context, contracts.Span) {
	newCtx, spanDriver := a.driver.StartSpan(ctx, name, opts...)
	return newCtx, &spanWrapper{driver: spanDriver}
}

func (a *Adapter) Extract(ctx context.Context, carrier contracts.Carrier) context.Context {
	return a.driver.Extract(ctx, carrier)
}

func (a *Adapter) Inject(ctx context.Context, carrier contracts.Carrier) error {
	return a.driver.Inject(ctx, carrier)
}

func (a *Adapter) Close() error {
	return a.driver.Close()
}

// spanWrapper wraps SpanDriver to implement contracts.Span
type spanWrapper struct {
	driver SpanDriver
}

func (s *spanWrapper) End() {
	s.driver.End()
}

func (s *spanWrapper) SetName(name string) {
	s.driver.SetName(name)
}

func (s *spanWrapper) SetStatus(code contracts.SpanStatus, message string) {
	s.driver.SetStatus(code, message)
}

func (s *spanWrapper) SetAttributes(attrs ...contracts.Attribute) {
	s.driver.SetAttributes(attrs...)
}

func (s *spanWrapper) AddEvent(name string, attrs ...contracts.Attribute) {
	s.driver.AddEvent(name, attrs...)
}

func (s *spanWrapper) RecordError(err error) {
	s.driver.RecordError(err)
}

func (s *spanWrapper) SpanContext() contracts.SpanContext {
	return s.driver.SpanContext()
}

func (s *spanWrapper) IsRecording() bool {
	return s.driver.IsRecording()
}

var _ contracts.Tracer = (*Adapter)(nil)

// ============ In-Memory Tracer Driver ============

// MemoryDriver stores traces in memory (useful for testing). It speaks
// real W3C traceparent on Inject and Extract, so propagation through
// message headers and outbox rows can be asserted end to end.
type MemoryDriver struct {
	spans []*MemorySpan
	mu    sync.RWMutex
	idGen uint64
}

// MemorySpan represents a span stored in memory
type MemorySpan struct {
	Name       string
	TraceID    string
	SpanID     string
	ParentID   string
	Remote     bool
	Kind       contracts.SpanKind
	StartTime  time.Time
	EndTime    time.Time
	Status     contracts.SpanStatus
	StatusMsg  string
	Attributes []contracts.Attribute
	Events     []SpanEvent
	Errors     []error
	mu         sync.Mutex
}

// SpanEvent represents an event on a span
type SpanEvent struct {
	Name       string
	Time       time.Time
	Attributes []contracts.Attribute
}

// NewMemoryDriver creates an in-memory tracer
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		spans: make([]*MemorySpan, 0),
	}
}

func (d *MemoryDriver) StartSpan(ctx context.Context, name string, opts ...contracts.SpanOption) (context.Context, SpanDriver) {
	id := atomic.AddUint64(&d.idGen, 1)

	cfg := &contracts.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	span := &MemorySpan{
		Name:       name,
		TraceID:    fmt.Sprintf("%032x", id),
		SpanID:     fmt.Sprintf("%016x", id),
		Kind:       cfg.Kind,
		StartTime:  time.Now(),
		Attributes: append([]contracts.Attribute{}, cfg.Attributes...),
		Events:     make([]SpanEvent, 0),
		Errors:     make([]error, 0),
	}

	// Continue the parent's trace
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}

	d.mu.Lock()
	d.spans = append(d.spans, span)
	d.mu.Unlock()

	return ContextWithSpan(ctx, span), span
}

// Extract parses a W3C traceparent header: 00-<trace-id>-<span-id>-<flags>
func (d *MemoryDriver) Extract(ctx context.Context, carrier contracts.Carrier) context.Context {
	header := carrier.Get("traceparent")
	parts := strings.Split(header, "-")
	if len(parts) != 4 || parts[0] != "00" || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return ctx
	}

	span := &MemorySpan{
		TraceID: parts[1],
		SpanID:  parts[2],
		Remote:  true,
	}
	return ContextWithSpan(ctx, span)
}

// Inject writes the active span as a W3C traceparent header.
func (d *MemoryDriver) Inject(ctx context.Context, carrier contracts.Carrier) error {
	span := SpanFromContext(ctx)
	if span == nil {
		return nil
	}
	carrier.Set("traceparent", fmt.Sprintf("00-%s-%s-01", span.TraceID, span.SpanID))
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}

// GetSpans returns all recorded spans (for testing)
func (d *MemoryDriver) GetSpans() []*MemorySpan {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]*MemorySpan, len(d.spans))
	copy(result, d.spans)
	return result
}

// Clear clears all recorded spans
func (d *MemoryDriver) Clear() {
	d.mu.Lock()
	d.spans = make([]*MemorySpan, 0)
	d.mu.Unlock()
}

// MemorySpan implements SpanDriver
func (s *MemorySpan) End() {
	s.mu.Lock()
	s.EndTime = time.Now()
	s.mu.Unlock()
}

func (s *MemorySpan) SetName(name string) {
	s.mu.Lock()
	s.Name = name
	s.mu.Unlock()
}

func (s *MemorySpan) SetStatus(code contracts.SpanStatus, message string) {
	s.mu.Lock()
	s.Status = code
	s.StatusMsg = message
	s.mu.Unlock()
}

func (s *MemorySpan) SetAttributes(attrs ...contracts.Attribute) {
	s.mu.Lock()
	s.Attributes = append(s.Attributes, attrs...)
	s.mu.Unlock()
}

func (s *MemorySpan) AddEvent(name string, attrs ...contracts.Attribute) {
	s.mu.Lock()
	s.Events = append(s.Events, SpanEvent{
		Name:       name,
		Time:       time.Now(),
		Attributes: attrs,
	})
	s.mu.Unlock()
}

func (s *MemorySpan) RecordError(err error) {
	s.mu.Lock()
	s.Errors = append(s.Errors, err)
	s.Status = contracts.SpanStatusError
	s.mu.Unlock()
}

func (s *MemorySpan) SpanContext() contracts.SpanContext {
	return contracts.SpanContext{
		TraceID: s.TraceID,
		SpanID:  s.SpanID,
		Remote:  s.Remote,
	}
}

func (s *MemorySpan) IsRecording() bool {
	return true
}

// Context key for spans
type spanContextKey struct{}

// ContextWithSpan returns a new context with span
func ContextWithSpan(ctx context.Context, span *MemorySpan) context.Context {
	return context.WithValue(ctx, spanContextKey{}, span)
}

// SpanFromContext extracts span from context
func SpanFromContext(ctx context.Context) *MemorySpan {
	span, _ := ctx.Value(spanContextKey{}).(*MemorySpan)
	return span
}

// ============ Noop Driver ============

// NoopDriver discards all traces
type NoopDriver struct{}

// NewNoopDriver creates a no-op driver
func NewNoopDriver() *NoopDriver {
	return &NoopDriver{}
}

func (d *NoopDriver) StartSpan(ctx context.Context, name string, opts ...contracts.SpanOption) (context.Context, SpanDriver) {
	return ctx, &noopSpan{}
}

func (d *NoopDriver) Extract(ctx context.Context, carrier contracts.Carrier) context.Context {
	return ctx
}

func (d *NoopDriver) Inject(ctx context.Context, carrier contracts.Carrier) error {
	return nil
}

func (d *NoopDriver) Close() error {
	return nil
}

type noopSpan struct{}

func (s *noopSpan) End()                                    {}
func (s *noopSpan) SetName(string)                          {}
func (s *noopSpan) SetStatus(contracts.SpanStatus, string)  {}
func (s *noopSpan) SetAttributes(...contracts.Attribute)    {}
func (s *noopSpan) AddEvent(string, ...contracts.Attribute) {}
func (s *noopSpan) RecordError(error)                       {}
func (s *noopSpan) SpanContext() contracts.SpanContext      { return contracts.SpanContext{} }
func (s *noopSpan) IsRecording() bool                       { return false }
