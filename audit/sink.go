package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// Sink persists audit events. Write must respect ctx cancellation; a
// returned error is reported to the recorder's fallback channel and never
// to the audited operation.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Write(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Write(context.Context, Event) error { return nil }

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Write(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one flat JSON record per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Write(_ context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return errors.New("nil audit writer")
	}
	data, err := event.MarshalRecord()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data = append(data, '\n')
	_, err = s.writer.Write(data)
	return err
}

// MultiSink writes to every sink, continuing past failures. The returned
// error joins all sink errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DecodeRecords reads JSON Lines as written by [JSONWriterSink] and
// [FileSink].
func DecodeRecords(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out []map[string]any
	for {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}
