// Package sinktest provides a recording sink for tests.
package sinktest

import (
	"context"
	"sync"

	"github.com/neox5/querygauge/internal/metric"
)

// Published is one recorded Publish call.
type Published struct {
	Namespace string
	Point     metric.DataPoint
}

// Recorder is a sink.Sink that keeps every published point.
// Fail, when set, decides which points are rejected.
type Recorder struct {
	Fail func(metric.DataPoint) error

	mu        sync.Mutex
	published []Published
	flushes   int
	closed    bool
}

func (r *Recorder) Publish(_ context.Context, namespace string, p metric.DataPoint) error {
	if r.Fail != nil {
		if err := r.Fail(p); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, Published{Namespace: namespace, Point: p})
	return nil
}

func (r *Recorder) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *Recorder) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Published returns the recorded calls in order.
func (r *Recorder) Published() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.published...)
}

// Metrics returns the metric names of recorded points in order.
func (r *Recorder) Metrics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.published))
	for i, p := range r.published {
		names[i] = p.Point.Name
	}
	return names
}

// Flushes returns the number of Flush calls.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
