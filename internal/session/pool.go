package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiln-ai/router/internal/streamparser"
	"github.com/kiln-ai/router/pkg/models"
)

// ProviderCapacity configures one provider's slice of the pool.
type ProviderCapacity struct {
	Max         int
	IdleTimeout time.Duration
}

// Worker is the pool-owned wrapper around one Transport.
type Worker struct {
	ref       string
	provider  models.ProviderId
	transport *Transport
	checkedOutBy string
	lastActive   time.Time
}

func (w *Worker) snapshot() models.Session {
	state := w.transport.State()
	return models.Session{
		SessionID:           w.transport.SessionID(),
		Ref:                 w.ref,
		Provider:            w.provider,
		State:               state,
		CheckedOutBy:        w.checkedOutBy,
		LastActiveMonotonic: w.lastActive,
	}
}

func (w *Worker) alive() bool {
	s := w.transport.State()
	return s != models.SessionDisconnected
}

// Ref returns the pool-assigned handle to pass back to Checkin.
func (w *Worker) Ref() string { return w.ref }

// notManagedTransportError is returned by Query when the worker's
// Transport wasn't built with NewManagedTransport.
type notManagedTransportError struct{}

func (notManagedTransportError) Error() string {
	return "session: worker's transport was not built with NewManagedTransport"
}

// Query sends req's last message as one subprocess turn and blocks for
// its result, translating the streamparser.Snapshot into a
// models.Response. Only usable on a Transport constructed via
// NewManagedTransport.
func (w *Worker) Query(ctx context.Context, req models.Request) (models.Response, error) {
	qr, ok := w.transport.receiver.(*queryReceiver)
	if !ok {
		return models.Response{}, notManagedTransportError{}
	}

	prompt := lastMessageContent(req)
	queryRef, err := w.transport.SendQuery(prompt)
	if err != nil {
		return models.Response{}, err
	}

	ch := qr.await(queryRef)
	w.lastActive = time.Now()

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			return models.Response{}, outcome.err
		}
		return snapshotToResponse(outcome.snapshot, w.provider), nil
	case <-ctx.Done():
		qr.cancel(queryRef)
		return models.Response{}, ctx.Err()
	}
}

func lastMessageContent(req models.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func snapshotToResponse(snap streamparser.Snapshot, provider models.ProviderId) models.Response {
	return models.Response{
		Text:      snap.Text,
		Thinking:  snap.Thinking,
		ToolUses:  snap.ToolUses,
		Usage:     snap.Usage,
		SessionID: snap.SessionID,
		Model:     snap.Model,
		Provider:  provider,
	}
}

// ProviderStatus is one entry of Pool.Status().
type ProviderStatus struct {
	Idle        int
	CheckedOut  int
	Total       int
	Max         int
}

// SpawnFunc constructs and starts a new Transport for provider, returning
// it ready to serve queries.
type SpawnFunc func(ctx context.Context, provider models.ProviderId) (*Transport, error)

// Pool implements checkout/checkin across providers with capacity caps,
// idle reaping, and caller-death auto-checkin. All mutation is
// serialized through a single mutex.
type Pool struct {
	mu       sync.Mutex
	workers  map[string]*Worker // keyed by ref
	capacity map[models.ProviderId]ProviderCapacity
	pending  map[models.ProviderId]int // spawns reserved but not yet inserted into workers
	spawn    SpawnFunc
	logger   *slog.Logger

	cleanupInterval time.Duration
	stopReaper      chan struct{}
}

// NewPool constructs a Pool. Call Start to begin the idle reaper.
func NewPool(spawn SpawnFunc, capacity map[models.ProviderId]ProviderCapacity, cleanupInterval time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Second
	}
	return &Pool{
		workers:         make(map[string]*Worker),
		capacity:        capacity,
		pending:         make(map[models.ProviderId]int),
		spawn:           spawn,
		logger:          logger.With("component", "session.pool"),
		cleanupInterval: cleanupInterval,
	}
}

// Start launches the periodic idle reaper goroutine.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.stopReaper != nil {
		p.mu.Unlock()
		return
	}
	p.stopReaper = make(chan struct{})
	p.mu.Unlock()

	go p.reapLoop()
}

// Stop halts the reaper and closes every worker.
func (p *Pool) Stop() {
	p.mu.Lock()
	stopCh := p.stopReaper
	p.stopReaper = nil
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.workers = make(map[string]*Worker)
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	for _, w := range workers {
		w.transport.Close()
	}
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopReaper:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	var toClose []*Worker
	now := time.Now()
	for ref, w := range p.workers {
		if w.checkedOutBy != "" {
			continue
		}
		cap := p.capacity[w.provider]
		if cap.IdleTimeout <= 0 {
			continue
		}
		if now.Sub(w.lastActive) > cap.IdleTimeout {
			toClose = append(toClose, w)
			delete(p.workers, ref)
		}
	}
	p.mu.Unlock()

	for _, w := range toClose {
		w.transport.Close()
	}
}

// Checkout reserves an idle session for provider, or spawns a new one if
// under capacity. callerID identifies the caller for death-monitoring
// (the caller is responsible for invoking Checkin, or for the process
// supervising it to call NotifyCallerDead).
//
// Failure is immediate and does not queue (Open Question #1, DESIGN.md):
// the ctx deadline bounds only the spawn attempt. The capacity slot is
// reserved under the lock before spawn runs, and released if spawn
// fails, so two concurrent checkouts against a Max=1 provider can never
// both spawn.
func (p *Pool) Checkout(ctx context.Context, provider models.ProviderId, callerID string) (*Worker, error) {
	p.mu.Lock()
	idle := p.findIdleLocked(provider)
	if idle != nil {
		idle.checkedOutBy = callerID
		idle.lastActive = time.Now()
		p.mu.Unlock()
		return idle, nil
	}

	cap := p.capacity[provider]
	total := p.countLocked(provider) + p.pending[provider]
	if cap.Max > 0 && total >= cap.Max {
		p.mu.Unlock()
		return nil, models.NewPoolExhausted()
	}
	p.pending[provider]++
	p.mu.Unlock()

	transport, err := p.spawn(ctx, provider)

	p.mu.Lock()
	p.pending[provider]--
	if err != nil {
		p.mu.Unlock()
		return nil, models.NewSpawnFailed(err.Error())
	}

	w := &Worker{
		ref:          uuid.NewString(),
		provider:     provider,
		transport:    transport,
		checkedOutBy: callerID,
		lastActive:   time.Now(),
	}
	p.workers[w.ref] = w
	p.mu.Unlock()

	return w, nil
}

func (p *Pool) findIdleLocked(provider models.ProviderId) *Worker {
	for _, w := range p.workers {
		if w.provider == provider && w.checkedOutBy == "" && w.alive() {
			return w
		}
	}
	return nil
}

func (p *Pool) countLocked(provider models.ProviderId) int {
	n := 0
	for _, w := range p.workers {
		if w.provider == provider {
			n++
		}
	}
	return n
}

// Checkin marks a session idle again.
func (p *Pool) Checkin(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[ref]
	if !ok {
		return errNotFound
	}
	w.checkedOutBy = ""
	w.lastActive = time.Now()
	return nil
}

// NotifyCallerDead auto-checks-in every session held by callerID, for
// when the process supervising callerID observes its death monitor fire.
func (p *Pool) NotifyCallerDead(callerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		if w.checkedOutBy == callerID {
			w.checkedOutBy = ""
			w.lastActive = time.Now()
		}
	}
}

// CloseSession removes ref from the pool and kills its worker.
func (p *Pool) CloseSession(ref string) error {
	p.mu.Lock()
	w, ok := p.workers[ref]
	if ok {
		delete(p.workers, ref)
	}
	p.mu.Unlock()
	if !ok {
		return errNotFound
	}
	w.transport.Close()
	return nil
}

// reapDeadWorkers removes any worker whose transport has gone
// disconnected on its own (process exit exhausted reconnects); no
// automatic respawn is attempted.
func (p *Pool) reapDeadWorkers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ref, w := range p.workers {
		if !w.alive() {
			delete(p.workers, ref)
		}
	}
}

// Status returns a per-provider snapshot.
func (p *Pool) Status() map[models.ProviderId]ProviderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[models.ProviderId]ProviderStatus)
	for provider, cap := range p.capacity {
		out[provider] = ProviderStatus{Max: cap.Max}
	}
	for _, w := range p.workers {
		st := out[w.provider]
		st.Total++
		if w.checkedOutBy == "" {
			st.Idle++
		} else {
			st.CheckedOut++
		}
		out[w.provider] = st
	}
	return out
}

type poolError string

func (e poolError) Error() string { return string(e) }

const errNotFound = poolError("session not found")
