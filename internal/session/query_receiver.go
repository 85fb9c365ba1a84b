package session

import (
	"sync"

	"github.com/kiln-ai/router/internal/streamparser"
	"github.com/kiln-ai/router/pkg/models"
)

// queryReceiver adapts the Transport's async, event-per-line Receiver
// contract into synchronous query/response calls for Worker.Query. It
// runs its own streamparser.Parser over the events the transport
// forwards and delivers the finalized snapshot once a "result" event
// closes the turn.
type queryReceiver struct {
	mu      sync.Mutex
	parser  *streamparser.Parser
	pending map[string]chan queryOutcome
}

type queryOutcome struct {
	snapshot streamparser.Snapshot
	err      *models.Error
}

func newQueryReceiver() *queryReceiver {
	return &queryReceiver{
		parser:  streamparser.New(),
		pending: make(map[string]chan queryOutcome),
	}
}

func (r *queryReceiver) await(queryRef string) chan queryOutcome {
	ch := make(chan queryOutcome, 1)
	r.mu.Lock()
	r.pending[queryRef] = ch
	r.mu.Unlock()
	return ch
}

func (r *queryReceiver) cancel(queryRef string) {
	r.mu.Lock()
	delete(r.pending, queryRef)
	r.mu.Unlock()
}

func (r *queryReceiver) OnReady() {}

func (r *queryReceiver) OnEvent(queryRef string, ev streamparser.RawEvent) {
	r.mu.Lock()
	r.parser.Feed(ev)
	isResult := ev.Type == "result"
	var snap streamparser.Snapshot
	if isResult {
		snap = r.parser.Finalize()
		r.parser.Reset()
	}
	ch, ok := r.pending[queryRef]
	if isResult {
		delete(r.pending, queryRef)
	}
	r.mu.Unlock()

	if isResult && ok {
		ch <- queryOutcome{snapshot: snap}
	}
}

func (r *queryReceiver) OnThinkingComplete(string) {}

func (r *queryReceiver) OnTransportClosed(reason string, exitCode int) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]chan queryOutcome)
	r.mu.Unlock()

	for _, ch := range pending {
		ch <- queryOutcome{err: models.NewProcessError(exitCode, reason)}
	}
}

func (r *queryReceiver) OnError(err *models.Error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]chan queryOutcome)
	r.mu.Unlock()

	for _, ch := range pending {
		ch <- queryOutcome{err: err}
	}
}
