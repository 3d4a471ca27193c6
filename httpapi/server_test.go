package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/schema"
)

type stubWorker struct {
	mu      sync.Mutex
	state   schema.ProcessState
	sent    []schema.Command
	onMsg   []func(schema.Message)
	onState []func(schema.ProcessState)
}

func (w *stubWorker) Start(context.Context) error {
	w.setState(schema.ProcessState{Phase: schema.PhaseRunning, PID: 4242})
	return nil
}

func (w *stubWorker) Stop(context.Context) error {
	w.setState(schema.ProcessState{Phase: schema.PhaseExited})
	return nil
}

func (w *stubWorker) Send(_ context.Context, cmd schema.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Phase != schema.PhaseRunning {
		return schema.ErrNotRunning
	}
	w.sent = append(w.sent, cmd)
	return nil
}

func (w *stubWorker) State() schema.ProcessState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *stubWorker) OnMessage(fn func(schema.Message)) {
	w.mu.Lock()
	w.onMsg = append(w.onMsg, fn)
	w.mu.Unlock()
}

func (w *stubWorker) OnStateChange(fn func(schema.ProcessState)) {
	w.mu.Lock()
	w.onState = append(w.onState, fn)
	w.mu.Unlock()
}

func (w *stubWorker) setState(state schema.ProcessState) {
	w.mu.Lock()
	w.state = state
	watchers := append([]func(schema.ProcessState){}, w.onState...)
	w.mu.Unlock()
	for _, fn := range watchers {
		fn(state)
	}
}

func (w *stubWorker) emit(msg schema.Message) {
	w.mu.Lock()
	handlers := append([]func(schema.Message){}, w.onMsg...)
	w.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

func (w *stubWorker) commands() []schema.Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]schema.Command(nil), w.sent...)
}

type fixture struct {
	worker *stubWorker
	bridge core.Bridge
	hub    *Hub
	server *Server
}

func newFixture(t *testing.T, start bool) *fixture {
	t.Helper()
	hub := NewHub(32, nil)
	worker := &stubWorker{state: schema.ProcessState{Phase: schema.PhaseNotStarted}}
	bridge, err := core.NewBridge(schema.BridgeConfig{
		WorkerBinary: "worker",
		ScratchDir:   t.TempDir(),
	}, core.BridgeDeps{Worker: worker, Surfaces: hub})
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	bridge.OnBackendMessage(hub.OnBackendMessage)
	bridge.OnWorkerState(hub.OnWorkerState)
	if start {
		if err := bridge.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	t.Cleanup(func() { _ = bridge.Close(context.Background()) })
	return &fixture{
		worker: worker,
		bridge: bridge,
		hub:    hub,
		server: NewServer(Config{}, bridge, hub),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestStatusReportsWorker(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	status := decodeBody[statusResponse](t, rec)
	if status.Worker.Phase != schema.PhaseRunning || status.Worker.PID != 4242 || !status.Available {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Version == "" {
		t.Fatalf("expected version")
	}
}

func TestConvertUsesDefaultOptions(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/convert", `{"path":"/tmp/cat.png"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code %d: %s", rec.Code, rec.Body.String())
	}
	cmds := f.worker.commands()
	if len(cmds) != 1 {
		t.Fatalf("expected one command, got %d", len(cmds))
	}
	convert, ok := cmds[0].(schema.ConvertCommand)
	if !ok {
		t.Fatalf("unexpected command %T", cmds[0])
	}
	if convert.Path != "/tmp/cat.png" || convert.Options != schema.DefaultConvertOptions() {
		t.Fatalf("unexpected convert: %+v", convert)
	}
}

func TestConvertErrors(t *testing.T) {
	f := newFixture(t, true)
	cases := []struct {
		name string
		body string
		want int
	}{
		{name: "empty path", body: `{"path":"  "}`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"path":"/x","bogus":1}`, want: http.StatusBadRequest},
		{name: "not json", body: `nope`, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.do(t, http.MethodPost, "/api/convert", tc.body); rec.Code != tc.want {
				t.Fatalf("status code %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSubmitWhileStoppedIsUnavailable(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/api/ping", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status code %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), schema.ErrNotRunning.Error()) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestSaveSubmitsCommand(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/save", `{"ascii":"art","filename":"out.html","format":"html"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code %d", rec.Code)
	}
	cmds := f.worker.commands()
	save, ok := cmds[len(cmds)-1].(schema.SaveCommand)
	if !ok || save.Format != schema.SaveHTML || save.Filename != "out.html" {
		t.Fatalf("unexpected command %+v", cmds)
	}
	if rec := f.do(t, http.MethodPost, "/api/save", `{"ascii":"art","format":"pdf"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for pdf, got %d", rec.Code)
	}
}

func TestHistoryDeleteRequiresFreshList(t *testing.T) {
	f := newFixture(t, true)
	if rec := f.do(t, http.MethodDelete, "/api/history/0", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected conflict before any list, got %d", rec.Code)
	}
	f.worker.emit(schema.Message{Kind: schema.MessageHistoryList, History: []schema.HistoryEntry{
		{Timestamp: "2024-01-01T00:00:00", ASCII: "a"},
		{Timestamp: "2024-01-02T00:00:00", ASCII: "b"},
	}})

	history := decodeBody[historyResponse](t, f.do(t, http.MethodGet, "/api/history", ""))
	if len(history.Entries) != 2 || !history.Fresh {
		t.Fatalf("unexpected history %+v", history)
	}
	if rec := f.do(t, http.MethodDelete, "/api/history/5", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for out of range, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/history/x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for non-integer, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/history/1", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/history/0", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected conflict on stale list, got %d", rec.Code)
	}
	cmds := f.worker.commands()
	if len(cmds) != 2 {
		t.Fatalf("expected delete then refresh, got %+v", cmds)
	}
	if del, ok := cmds[0].(schema.DeleteHistoryCommand); !ok || del.Index != 1 {
		t.Fatalf("unexpected first command %+v", cmds[0])
	}
	if _, ok := cmds[1].(schema.GetHistoryCommand); !ok {
		t.Fatalf("unexpected second command %+v", cmds[1])
	}
}

func TestWidgetLifecycle(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/widgets", `{"isGif":false,"ascii":"hello <world>"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status %d: %s", rec.Code, rec.Body.String())
	}
	opened := decodeBody[openResponse](t, rec)
	if opened.ID == "" || opened.URL != "widgets/"+string(opened.ID) {
		t.Fatalf("unexpected open response %+v", opened)
	}
	base := "/api/widgets/" + string(opened.ID)

	doc := f.do(t, http.MethodGet, "/widgets/"+string(opened.ID), "")
	if doc.Code != http.StatusOK || !strings.Contains(doc.Body.String(), "hello &lt;world&gt;") {
		t.Fatalf("unexpected document %d: %s", doc.Code, doc.Body.String())
	}

	larger := f.do(t, http.MethodPost, base+"/larger", "")
	if larger.Code != http.StatusOK {
		t.Fatalf("larger status %d", larger.Code)
	}
	if snap := decodeBody[schema.WidgetSnapshot](t, larger); snap.FontSizePx != schema.DefaultFontSize+1 {
		t.Fatalf("unexpected font size %d", snap.FontSizePx)
	}
	if rec := f.do(t, http.MethodPost, base+"/move", `{"dx":5,"dy":-3}`); rec.Code != http.StatusNoContent {
		t.Fatalf("move status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/explode", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown action, got %d", rec.Code)
	}

	list := decodeBody[struct {
		Widgets []schema.WidgetSnapshot `json:"widgets"`
	}](t, f.do(t, http.MethodGet, "/api/widgets", ""))
	if len(list.Widgets) != 1 || list.Widgets[0].OffsetX != 5 || list.Widgets[0].OffsetY != -3 {
		t.Fatalf("unexpected widgets %+v", list.Widgets)
	}

	if rec := f.do(t, http.MethodDelete, base, ""); rec.Code != http.StatusOK {
		t.Fatalf("close status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, base, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected not found on second close, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/widgets/"+string(opened.ID), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected closed document to be gone, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/next", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected not found for closed widget, got %d", rec.Code)
	}
}

func TestWidgetOpenRejectsEmptyPayload(t *testing.T) {
	f := newFixture(t, true)
	if rec := f.do(t, http.MethodPost, "/api/widgets", `{"isGif":false,"ascii":"   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", rec.Code)
	}
}

type sseEvent struct {
	id    string
	name  string
	event StreamEvent
}

func readSSE(t *testing.T, r *bufio.Reader) (sseEvent, bool) {
	t.Helper()
	var out sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out, false
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return out, true
		case strings.HasPrefix(line, "id: "):
			out.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			out.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &out.event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, path string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	return bufio.NewReader(resp.Body)
}

func TestBackendEventStream(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	stream := openStream(t, srv, "/api/events")
	first, ok := readSSE(t, stream)
	if !ok || first.name != EventWorker || first.event.Worker == nil || first.event.Worker.Phase != schema.PhaseRunning {
		t.Fatalf("unexpected initial event %+v", first)
	}

	f.worker.emit(schema.Message{Kind: schema.MessageStatus, Text: "pong"})
	next, ok := readSSE(t, stream)
	if !ok {
		t.Fatalf("stream ended")
	}
	if next.name != "" || next.event.Type != EventMessage || next.event.Message == nil || next.event.Message.Text != "pong" {
		t.Fatalf("unexpected message event %+v", next)
	}
	if next.id == "" {
		t.Fatalf("expected event id")
	}
}

func TestWidgetEventStreamEndsOnDismiss(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	id, err := f.bridge.OpenPresentation(context.Background(), schema.PresentationPayload{StaticArt: "art"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stream := openStream(t, srv, "/widgets/"+string(id)+"/events")
	first, ok := readSSE(t, stream)
	if !ok || first.name != EventSnapshot || first.event.Widget == nil || first.event.Widget.Text != "art" {
		t.Fatalf("unexpected initial event %+v", first)
	}

	if _, err := f.bridge.ControlPresentation(id, schema.ActionSmaller); err != nil {
		t.Fatalf("control: %v", err)
	}
	update, ok := readSSE(t, stream)
	if !ok || update.name != EventSnapshot || update.event.Widget.FontSizePx != schema.DefaultFontSize-1 {
		t.Fatalf("unexpected update %+v", update)
	}

	if !f.bridge.ClosePresentation(context.Background(), id) {
		t.Fatalf("close failed")
	}
	var sawDismiss bool
	for {
		ev, ok := readSSE(t, stream)
		if !ok {
			break
		}
		if ev.name == EventDismiss {
			sawDismiss = true
		}
	}
	if !sawDismiss {
		t.Fatalf("expected dismiss before the stream ended")
	}
}

func TestUnknownWidgetStreamIsNotFound(t *testing.T) {
	f := newFixture(t, true)
	if rec := f.do(t, http.MethodGet, "/widgets/nope/events", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", rec.Code)
	}
}

func TestIndexAppliesBasePath(t *testing.T) {
	f := newFixture(t, false)
	server := NewServer(Config{BaseURL: "https://example.test", BasePath: "/ascart"}, f.bridge, f.hub)
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ascart", nil))
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/ascart/" {
		t.Fatalf("unexpected redirect %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ascart/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `<base href="https://example.test/ascart/" />`) {
		t.Fatalf("base href missing: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ascart/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("prefixed api status %d", rec.Code)
	}
}

func TestStatusForError(t *testing.T) {
	cases := map[error]int{
		schema.ErrInvalidRequest: http.StatusBadRequest,
		schema.ErrWidgetNotFound: http.StatusNotFound,
		schema.ErrStaleHistory:   http.StatusConflict,
		schema.ErrProcessExited:  http.StatusServiceUnavailable,
		context.DeadlineExceeded: http.StatusGatewayTimeout,
		io.ErrUnexpectedEOF:      http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusForError(err); got != want {
			t.Fatalf("%v: got %d want %d", err, got, want)
		}
	}
}
