package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/httpapi"
	"pkt.systems/ascart/schema"
)

// shellWorker answers the line protocol with canned replies. The GIF delays
// are long so playback never advances on its own during a test.
const shellWorker = `
reply() { printf '%s\n' "$1"; }
echo "[WORKER INFO] ready" >&2
while IFS= read -r line; do
  case "$line" in
    *'"command":"ping"'*) reply '{"status":"success","message":"Pong from sh"}' ;;
    *'"command":"convert"'*'.gif"'*) printf '%s' '{"status":"success","type":"gif-r'; reply 'esult","frames":["AAA","BBB","CCC"],"delays":[60000,60000,60000],"frameCount":3}' ;;
    *'"command":"convert"'*) reply 'not json'; reply '{"status":"success","type":"ascii-result","ascii":"#+#\n+#+","isGif":false}' ;;
    *'"command":"get_history"'*) reply '{"status":"success","history":[]}' ;;
    *) reply '{"status":"error","error":"unsupported"}' ;;
  esac
done
`

type testServer struct {
	bridge  core.Bridge
	hub     *httpapi.Hub
	httpSrv *httpapi.Server
	http    *httptest.Server

	mu       sync.Mutex
	messages []schema.Message
	states   []schema.ProcessState
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	hub := httpapi.NewHub(0, nil)
	bridge, err := core.NewBridge(schema.BridgeConfig{
		WorkerBinary: sh,
		WorkerArgs:   []string{"-c", shellWorker},
		StopGrace:    time.Second,
		ScratchDir:   t.TempDir(),
		Autoplay:     true,
	}, core.BridgeDeps{Surfaces: hub})
	if err != nil {
		t.Fatal(err)
	}
	ts := &testServer{bridge: bridge, hub: hub}
	bridge.OnBackendMessage(hub.OnBackendMessage)
	bridge.OnWorkerState(hub.OnWorkerState)
	bridge.OnBackendMessage(func(msg schema.Message) {
		ts.mu.Lock()
		ts.messages = append(ts.messages, msg)
		ts.mu.Unlock()
	})
	bridge.OnWorkerState(func(state schema.ProcessState) {
		ts.mu.Lock()
		ts.states = append(ts.states, state)
		ts.mu.Unlock()
	})
	ts.httpSrv = httpapi.NewServer(httpapi.Config{Addr: "127.0.0.1:0"}, bridge, hub)
	ts.http = httptest.NewServer(ts.httpSrv.Handler())
	t.Cleanup(ts.http.Close)

	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bridge.Close(ctx)
	})
	return ts
}

// waitMessage polls until a received message satisfies match.
func (ts *testServer) waitMessage(t *testing.T, match func(schema.Message) bool) schema.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ts.mu.Lock()
		for _, msg := range ts.messages {
			if match(msg) {
				ts.mu.Unlock()
				return msg
			}
		}
		ts.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for message")
	return schema.Message{}
}

func (ts *testServer) sawPhase(phase schema.ProcessPhase) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, state := range ts.states {
		if state.Phase == phase {
			return true
		}
	}
	return false
}

func writeJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if target == nil {
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatal(err)
	}
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
