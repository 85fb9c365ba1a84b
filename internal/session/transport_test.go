package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiln-ai/router/internal/streamparser"
	"github.com/kiln-ai/router/pkg/models"
)

// recordingReceiver captures transport lifecycle calls for assertions.
type recordingReceiver struct {
	ready  chan struct{}
	closed chan struct{}
}

func newRecordingReceiver() *recordingReceiver {
	return &recordingReceiver{ready: make(chan struct{}, 8), closed: make(chan struct{}, 8)}
}

func (r *recordingReceiver) OnReady()                              { r.ready <- struct{}{} }
func (r *recordingReceiver) OnEvent(string, streamparser.RawEvent)  {}
func (r *recordingReceiver) OnThinkingComplete(string)              {}
func (r *recordingReceiver) OnTransportClosed(reason string, code int) {
	r.closed <- struct{}{}
}
func (r *recordingReceiver) OnError(*models.Error) {}

// writeFakeCLI builds a shell script that mimics a provider CLI: every
// invocation prints one result event carrying a session id; the first
// invocation (counted in the file at counterPath) then exits non-zero, and
// every later one (the reconnect) stays alive reading stdin so the
// transport settles in session_ready.
func writeFakeCLI(t *testing.T, counterPath string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli.sh")
	contents := fmt.Sprintf(`#!/bin/sh
count=0
if [ -f %q ]; then
  count=$(cat %q)
fi
count=$((count+1))
echo "$count" > %q

echo '{"type":"result","session_id":"abc"}'

if [ "$count" -eq 1 ]; then
  exit 1
fi
while read -r _line; do :; done
exit 0
`, counterPath, counterPath, counterPath)
	require.NoError(t, os.WriteFile(script, []byte(contents), 0o755))
	return script
}

func TestTransportReconnectPreservesSessionID(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	counterPath := filepath.Join(t.TempDir(), "count")
	script := writeFakeCLI(t, counterPath)

	receiver := newRecordingReceiver()
	transport := NewTransport(receiver, nil)

	ctx := context.Background()
	require.NoError(t, transport.Start(ctx, StartOpts{Command: script}))
	defer transport.Close()

	select {
	case <-receiver.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial OnReady")
	}

	// The fake CLI exits 1 right after emitting its result event; wait for
	// the transport to notice, reconnect (first backoff is 1s), and come
	// back ready with --resume abc on the respawned argv.
	select {
	case <-receiver.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reconnect OnReady")
	}

	require.Equal(t, "abc", transport.SessionID(), "session id must survive reconnect")
	require.Equal(t, models.SessionReady, transport.State())

	select {
	case <-receiver.closed:
		t.Fatal("transport should not report transport_closed when reconnect succeeds")
	default:
	}
}
