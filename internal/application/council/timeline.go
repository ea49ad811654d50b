package council

import (
	"github.com/bryanwahyu/alphacouncil/internal/application"
	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

// tracer stamps the ordered lifecycle events of one pipeline run. Only one
// goroutine appends at a time (the pipeline marks events outside the fan-out
// section), so no locking is needed.
type tracer struct {
	clock  application.Clock
	events []domain.TimelineEvent
}

func newTracer(clock application.Clock) *tracer {
	return &tracer{clock: clock}
}

func (t *tracer) mark(stage, detail string) {
	t.events = append(t.events, domain.TimelineEvent{
		Stage:  stage,
		Detail: detail,
		At:     t.clock.Now(),
	})
}

// snapshot returns a copy of the events so far, safe to hand to persistence
// while the tracer keeps appending.
func (t *tracer) snapshot() []domain.TimelineEvent {
	return append([]domain.TimelineEvent(nil), t.events...)
}
