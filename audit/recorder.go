package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrInternalAuditFailure marks every failure reported to the fallback
	// channel. It is never returned to callers of Record.
	ErrInternalAuditFailure = errors.New("internal audit failure")
	// ErrMissingEventType is reported when an entry has no event type.
	ErrMissingEventType = errors.New("audit event type is required")
	// ErrDropped is reported when the dispatcher buffer rejected an event.
	ErrDropped = errors.New("audit event dropped")
	// ErrRecorderClosed is reported when recording after Close.
	ErrRecorderClosed = errors.New("audit recorder closed")
	// ErrWriteTimeout is reported when a synchronous write did not finish
	// within the write bound.
	ErrWriteTimeout = errors.New("audit write timed out")
)

// defaultSyncBound caps a synchronous Record when WriteTimeout is unset.
const defaultSyncBound = 5 * time.Second

// Hooks observe recorder outcomes, typically for metrics. Nil hooks are
// skipped.
type Hooks struct {
	Recorded func()
	Failed   func()
	Dropped  func()
}

// Config configures a [Recorder].
type Config struct {
	// Async delivers through a buffered [Dispatcher]. Otherwise Record
	// waits for a single writer goroutine, for at most WriteTimeout.
	Async          bool
	BufferSize     int
	DropIfFull     bool
	EnqueueTimeout time.Duration
	WriteTimeout   time.Duration

	// ChainKey enables the HMAC hash chain when non-empty.
	ChainKey []byte
	Tables   Tables

	// Fallback receives audit failures. Defaults to a logrus logger on
	// stderr.
	Fallback logrus.FieldLogger
	Hooks    Hooks
	Clock    func() time.Time
}

// Recorder builds, seals and delivers audit events. Record never returns
// an error and never panics; failures go to the fallback logger.
type Recorder struct {
	sink       Sink
	tables     Tables
	chain      *Chain
	dispatcher *Dispatcher
	fallback   logrus.FieldLogger
	hooks      Hooks
	now        func() time.Time

	// sync mode: one writer seals and writes in order, callers wait at most bound
	jobs  chan syncJob
	bound time.Duration

	throttle   rate.Sometimes
	suppressed sync.Mutex
	skipped    int

	closed sync.Once
	done   chan struct{}
}

// NewRecorder creates a recorder that writes to sink.
func NewRecorder(sink Sink, cfg Config) *Recorder {
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Fallback == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		cfg.Fallback = l
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Tables.compliance == nil {
		cfg.Tables = DefaultTables()
	}

	r := &Recorder{
		sink:     sink,
		tables:   cfg.Tables,
		chain:    NewChain(cfg.ChainKey),
		fallback: cfg.Fallback.WithField("channel", "audit_fallback"),
		hooks:    cfg.Hooks,
		now:      cfg.Clock,
		throttle: rate.Sometimes{First: 20, Interval: time.Second},
		done:     make(chan struct{}),
	}

	if cfg.Async {
		r.dispatcher = NewDispatcher(DispatcherConfig{
			BufferSize:     cfg.BufferSize,
			DropIfFull:     cfg.DropIfFull,
			EnqueueTimeout: cfg.EnqueueTimeout,
			WriteTimeout:   cfg.WriteTimeout,
		}, sink, r.chain, r.reportDelivery)
	} else {
		r.bound = cfg.WriteTimeout
		if r.bound <= 0 {
			r.bound = defaultSyncBound
		}
		r.jobs = make(chan syncJob)
		go r.writeLoop()
	}

	return r
}

type syncJob struct {
	ctx    context.Context
	event  Event
	result chan syncResult
}

type syncResult struct {
	event Event
	err   error
}

func (r *Recorder) writeLoop() {
	for {
		select {
		case <-r.done:
			return
		case job := <-r.jobs:
			res := syncResult{event: job.event}
			deliver(job.ctx, r.sink, r.chain, r.bound, job.event, func(ev Event, err error) {
				res = syncResult{event: ev, err: err}
			})
			// buffered, so an abandoned job never blocks the writer
			job.result <- res
		}
	}
}

// writeSync hands event to the writer and waits for it, bounded by r.bound.
// A hung sink costs each caller at most the bound.
func (r *Recorder) writeSync(ctx context.Context, event Event) error {
	timer := time.NewTimer(r.bound)
	defer timer.Stop()

	job := syncJob{ctx: ctx, event: event, result: make(chan syncResult, 1)}
	select {
	case r.jobs <- job:
	case <-timer.C:
		r.reportDelivery(event, ErrWriteTimeout)
		return ErrWriteTimeout
	case <-r.done:
		r.reportDelivery(event, ErrRecorderClosed)
		return ErrRecorderClosed
	}

	select {
	case res := <-job.result:
		if res.err != nil {
			r.reportDelivery(res.event, res.err)
		}
		return res.err
	case <-timer.C:
		r.reportDelivery(event, ErrWriteTimeout)
		return ErrWriteTimeout
	}
}

// Record builds an event from entry and hands it to the sink. It returns
// the event's correlation id, or [ErrorCorrelationID] when the event could
// not be built, queued or, in sync mode, persisted.
func (r *Recorder) Record(ctx context.Context, entry Entry) (id string) {
	if r == nil {
		return ErrorCorrelationID
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(entry, panicError(rec))
			id = ErrorCorrelationID
		}
	}()

	select {
	case <-r.done:
		r.fail(entry, ErrRecorderClosed)
		return ErrorCorrelationID
	default:
	}

	event, err := r.build(entry)
	if err != nil {
		r.fail(entry, err)
		return ErrorCorrelationID
	}

	if r.dispatcher != nil {
		if !r.dispatcher.Emit(event) {
			r.hook(r.hooks.Dropped)
			r.fail(entry, ErrDropped)
			return ErrorCorrelationID
		}
		r.hook(r.hooks.Recorded)
		return event.CorrelationID
	}

	if ctx == nil {
		ctx = context.Background()
	}
	// the audited operation's cancellation must not abort the write
	ctx = context.WithoutCancel(ctx)

	if err := r.writeSync(ctx, event); err != nil {
		return ErrorCorrelationID
	}
	r.hook(r.hooks.Recorded)
	return event.CorrelationID
}

// Tables returns the recorder's compliance and retention tables.
func (r *Recorder) Tables() Tables {
	return r.tables
}

// ChainHead returns the sequence and hash of the last sealed event.
func (r *Recorder) ChainHead() (uint64, string) {
	if r == nil {
		return 0, ""
	}
	return r.chain.Head()
}

// Dropped returns the number of events discarded by the dispatcher.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dispatcher.Dropped()
}

// Close drains pending events. Record after Close returns ErrorCorrelationID.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.closed.Do(func() {
		close(r.done)
		r.dispatcher.Close()
	})
}

func (r *Recorder) build(entry Entry) (Event, error) {
	if entry.EventType == "" {
		return Event{}, ErrMissingEventType
	}

	severity := entry.Severity
	if !severity.Valid() {
		severity = SeverityMedium
	}

	var extra map[string]string
	if len(entry.Extra) > 0 {
		extra = make(map[string]string, len(entry.Extra))
		for k, v := range entry.Extra {
			s, err := stringify(v)
			if err != nil {
				return Event{}, fmt.Errorf("extra %q: %w", k, err)
			}
			extra[k] = s
		}
	}

	id := entry.CorrelationID
	if id == "" {
		id = NewCorrelationID()
	}

	return Event{
		CorrelationID:   id,
		Timestamp:       r.now().UTC(),
		EventType:       entry.EventType,
		Severity:        severity,
		Description:     entry.Description,
		Resource:        entry.Resource,
		ResourceID:      entry.ResourceID,
		Actor:           entry.Actor,
		Request:         entry.Request,
		ComplianceFlags: r.tables.ComplianceFlags(entry.EventType),
		RetentionPeriod: r.tables.RetentionPeriod(entry.EventType),
		Extra:           extra,
	}, nil
}

// reportDelivery receives sink and seal failures after an event was
// accepted.
func (r *Recorder) reportDelivery(event Event, err error) {
	r.hook(r.hooks.Failed)
	r.logFailure(logrus.Fields{
		"correlation_id": event.CorrelationID,
		"event_type":     string(event.EventType),
		"sequence":       event.Sequence,
	}, err)
}

func (r *Recorder) fail(entry Entry, err error) {
	r.hook(r.hooks.Failed)
	r.logFailure(logrus.Fields{
		"event_type": string(entry.EventType),
		"severity":   string(entry.Severity),
	}, err)
}

func (r *Recorder) logFailure(fields logrus.Fields, err error) {
	logged := false
	r.throttle.Do(func() {
		logged = true
		r.suppressed.Lock()
		if r.skipped > 0 {
			fields["suppressed"] = r.skipped
			r.skipped = 0
		}
		r.suppressed.Unlock()
		r.fallback.WithFields(fields).WithError(fmt.Errorf("%w: %v", ErrInternalAuditFailure, err)).Error("audit record failed")
	})
	if !logged {
		r.suppressed.Lock()
		r.skipped++
		r.suppressed.Unlock()
	}
}

func (r *Recorder) hook(fn func()) {
	if fn != nil {
		fn()
	}
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
