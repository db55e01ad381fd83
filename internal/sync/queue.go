package sync

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

// write is one remote call on the write queue.
type write struct {
	op      string
	boardID string

	// bestEffort writes only log their failure.
	bestEffort bool

	run func(ctx context.Context, r remote.Remote) error

	// onSuccess runs on the worker after run succeeded.
	onSuccess func()

	// flushed marks a Flush barrier; run is nil.
	flushed chan struct{}
}

// enqueue appends w to the write queue. Remote write order equals enqueue
// order.
func (e *Engine) enqueue(w write) {
	select {
	case e.queue <- w:
	case <-e.ctx.Done():
		e.logger.WithField("op", w.op).Warn("engine closed, dropping remote write")
	}
}

// Flush waits until every write enqueued before the call has run.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.queue <- write{op: "flush", flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
}

func (e *Engine) runWrites() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case w := <-e.queue:
			e.execute(w)
		}
	}
}

func (e *Engine) execute(w write) {
	if w.flushed != nil {
		close(w.flushed)
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.writeTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "remote."+w.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("workera.board_id", w.boardID),
			attribute.Bool("workera.best_effort", w.bestEffort),
		),
	)
	start := time.Now()
	err := w.run(ctx, e.remote)
	if err == nil {
		span.End()
		if w.onSuccess != nil {
			w.onSuccess()
		}
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()

	entry := e.logger.WithError(err).WithFields(log.Fields{
		"op":       w.op,
		"board":    w.boardID,
		"duration": time.Since(start).String(),
	})
	if w.bestEffort {
		entry.Warn("best-effort remote write failed")
		return
	}
	entry.Warn("remote write failed, scheduling reload")
	// The reload must restore the server state instead of keeping the
	// rejected values.
	e.optimistic.reset()
	e.ScheduleReload(w.boardID)
}

// recordActivity appends an audit-log entry through the queue. Failures are
// logged only.
func (e *Engine) recordActivity(a model.Activity) {
	a.ID = model.NewID()
	a.UserID = e.userID
	a.CreatedAt = e.now().UnixMilli()
	e.enqueue(write{
		op:         "append_activity",
		boardID:    a.BoardID,
		bestEffort: true,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.AppendActivity(ctx, a)
		},
	})
}
