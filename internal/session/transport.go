// Package session implements the session transport state machine and the
// session pool built on top of it. The transport owns one long-lived
// subprocess speaking NDJSON over stdio, correlating each query with a
// query_ref-tagged event stream.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kiln-ai/router/internal/streamparser"
	"github.com/kiln-ai/router/pkg/models"
)

// maxBufferBytes is the subprocess stdout buffer cap: overflow emits
// buffer_overflow and clears the buffer.
const maxBufferBytes = 50 << 20 // 50 MiB

// reconnectBackoff is the fixed, non-adjustable reconnect schedule.
var reconnectBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// StartOpts composes the subprocess CLI invocation.
type StartOpts struct {
	Command           string
	Args              []string
	Model             string
	SystemPrompt      string
	MaxTurns          int
	ThinkingBudget    int
	PermissionMode    string
	AllowedTools      []string
	DisallowedTools   []string
	ResumeSessionID   string
}

// Receiver is notified of transport lifecycle and stream events. All
// methods must return promptly; the transport's read loop blocks on them.
type Receiver interface {
	OnReady()
	OnEvent(queryRef string, ev streamparser.RawEvent)
	OnThinkingComplete(queryRef string)
	OnTransportClosed(reason string, exitCode int)
	OnError(err *models.Error)
}

// Transport owns one subprocess and its state machine.
type Transport struct {
	logger   *slog.Logger
	receiver Receiver

	mu            sync.Mutex
	state         models.SessionState
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	sessionID     string // monotonic once set
	currentQuery  string
	parser        *streamparser.Parser
	reconnects    int
	opts          StartOpts

	connected atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewTransport constructs an idle Transport in the disconnected state.
func NewTransport(receiver Receiver, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		receiver: receiver,
		logger:   logger.With("component", "session.transport"),
		state:    models.SessionDisconnected,
		parser:   streamparser.New(),
	}
}

// NewManagedTransport builds a Transport wired with the package's own
// synchronous query receiver, so the resulting Transport can be driven
// through Worker.Query once it is checked out of a Pool. Use this from a
// Pool's SpawnFunc when callers want request/response semantics rather
// than raw event streaming.
func NewManagedTransport(logger *slog.Logger) *Transport {
	return NewTransport(newQueryReceiver(), logger)
}

// State returns the transport's current state under lock.
func (t *Transport) State() models.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionID returns the last captured provider session id.
func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Start spawns the subprocess and transitions connecting → ready on
// success.
func (t *Transport) Start(ctx context.Context, opts StartOpts) error {
	t.mu.Lock()
	t.opts = opts
	t.state = models.SessionConnecting
	t.mu.Unlock()

	return t.spawn(ctx)
}

func (t *Transport) spawn(ctx context.Context) error {
	t.mu.Lock()
	args := buildArgs(t.opts)
	cmdName := t.opts.Command
	t.mu.Unlock()

	cmd := exec.CommandContext(ctx, cmdName, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.state = models.SessionReady
	t.stopCh = make(chan struct{})
	t.mu.Unlock()
	t.connected.Store(true)

	t.wg.Add(2)
	go t.readLoop(stdout)
	go t.drainStderr(stderr)

	go t.awaitExit()

	t.receiver.OnReady()
	return nil
}

func buildArgs(opts StartOpts) []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}
	if opts.ThinkingBudget > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(opts.ThinkingBudget))
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	args = append(args, permissionModeFlags(opts.PermissionMode)...)
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	} else if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(opts.DisallowedTools, ","))
	}
	return append(args, opts.Args...)
}

// permissionModeFlags implements the fixed CLI flag mapping for each
// permission mode.
func permissionModeFlags(mode string) []string {
	switch mode {
	case "accept_edits":
		return []string{"--allowedTools", "Edit,Write,NotebookEdit"}
	case "plan":
		return []string{"--allowedTools", "Read,Glob,Grep,WebFetch,WebSearch"}
	case "bypass":
		return []string{"--dangerously-skip-permissions"}
	default:
		return nil
	}
}

// SendQuery writes one query to stdin and returns a fresh query_ref, or
// reports not_ready if the transport isn't in the ready state.
func (t *Transport) SendQuery(prompt string) (queryRef string, err error) {
	t.mu.Lock()
	if t.state != models.SessionReady {
		t.mu.Unlock()
		return "", models.NewNotReady()
	}
	queryRef = uuid.NewString()
	t.currentQuery = queryRef
	t.state = models.SessionQuerying
	t.parser.Reset()
	sessionID := t.sessionID
	stdin := t.stdin
	t.mu.Unlock()

	line := struct {
		Type    string `json:"type"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		SessionID string `json:"session_id,omitempty"`
	}{Type: "user"}
	line.Message.Role = "user"
	line.Message.Content = prompt
	line.SessionID = sessionID

	data, marshalErr := json.Marshal(line)
	if marshalErr != nil {
		return "", marshalErr
	}
	data = append(data, '\n')

	if _, werr := stdin.Write(data); werr != nil {
		return "", werr
	}
	return queryRef, nil
}

// Close transitions to disconnected and kills the subprocess abruptly; no
// graceful cancel of the subprocess is attempted.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.state == models.SessionDisconnected {
		t.mu.Unlock()
		return
	}
	t.state = models.SessionDisconnected
	cmd := t.cmd
	stopCh := t.stopCh
	t.mu.Unlock()

	t.connected.Store(false)
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	t.wg.Wait()
}

func (t *Transport) readLoop(stdout io.ReadCloser) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBufferBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		t.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		t.mu.Lock()
		ref := t.currentQuery
		t.mu.Unlock()
		if isBufferTooLong(err) {
			t.receiver.OnEvent(ref, streamparser.RawEvent{Type: "__buffer_overflow__"})
			t.receiver.OnError(models.NewBufferOverflow())
		}
	}
}

func isBufferTooLong(err error) bool {
	return err == bufio.ErrTooLong
}

func (t *Transport) handleLine(line []byte) {
	var ev streamparser.RawEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		// Decode errors are silently dropped: the CLI may interleave
		// non-JSON lines.
		return
	}

	t.mu.Lock()
	querying := t.state == models.SessionQuerying
	ref := t.currentQuery

	// session_id is captured from any result event, inside or outside an
	// active query (Open Question #3, DESIGN.md).
	if ev.Type == "result" && ev.SessionID != "" {
		t.sessionID = ev.SessionID
	}

	if !querying {
		t.mu.Unlock()
		return // any event received outside an active query is dropped
	}

	thinkingComplete := t.parser.Feed(ev)

	if ev.Type == "result" {
		t.state = models.SessionReady
		t.currentQuery = ""
	}
	t.mu.Unlock()

	t.receiver.OnEvent(ref, ev)
	if thinkingComplete {
		t.receiver.OnThinkingComplete(ref)
	}
}

func (t *Transport) drainStderr(stderr io.ReadCloser) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Debug("subprocess stderr", "line", scanner.Text())
	}
}

func (t *Transport) awaitExit() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()

	t.mu.Lock()
	alreadyClosing := t.state == models.SessionDisconnected
	t.mu.Unlock()
	if alreadyClosing {
		return // Close() initiated this exit; no reconnect needed.
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	if exitCode == 0 {
		t.receiver.OnTransportClosed("normal", 0)
		return
	}
	t.scheduleReconnect(exitCode)
}

func (t *Transport) scheduleReconnect(exitCode int) {
	t.mu.Lock()
	t.state = models.SessionReconnecting
	resumeID := t.sessionID
	t.mu.Unlock()

	for _, backoff := range reconnectBackoff {
		time.Sleep(backoff)

		t.mu.Lock()
		t.reconnects++
		attempt := t.reconnects
		opts := t.opts
		t.mu.Unlock()

		opts.ResumeSessionID = resumeID
		t.mu.Lock()
		t.opts = opts
		t.mu.Unlock()
		if err := t.spawn(context.Background()); err == nil {
			t.mu.Lock()
			t.reconnects = 0
			t.mu.Unlock()
			return
		}
		_ = attempt
	}

	t.mu.Lock()
	t.state = models.SessionDisconnected
	attempts := t.reconnects
	t.mu.Unlock()
	t.receiver.OnError(models.NewReconnectFailed(attempts))
	t.receiver.OnTransportClosed("reconnect_failed", exitCode)
}
