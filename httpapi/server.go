package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/internal/version"
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// Server serves the HTTP API, the control page and widget documents.
type Server struct {
	cfg    Config
	bridge core.Bridge
	hub    *Hub
	mount  mount
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, bridge core.Bridge, hub *Hub) *Server {
	if cfg.Convert == (schema.ConvertOptions{}) {
		cfg.Convert = schema.DefaultConvertOptions()
	}
	return &Server{
		cfg:    cfg,
		bridge: bridge,
		hub:    hub,
		mount:  newMount(cfg.BaseURL, cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS))))

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/ping", s.handlePing)
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/history/refresh", s.handleHistoryRefresh)
	mux.HandleFunc("DELETE /api/history/{index}", s.handleHistoryDelete)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/widgets", s.handleWidgetList)
	mux.HandleFunc("POST /api/widgets", s.handleWidgetOpen)
	mux.HandleFunc("DELETE /api/widgets/{id}", s.handleWidgetClose)
	mux.HandleFunc("POST /api/widgets/{id}/move", s.handleWidgetMove)
	mux.HandleFunc("POST /api/widgets/{id}/{action}", s.handleWidgetAction)
	mux.HandleFunc("GET /widgets/{id}", s.handleWidgetDocument)
	mux.HandleFunc("GET /widgets/{id}/events", s.handleWidgetEvents)

	return s.mount.wrap(withRequestLogging(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := indexPage(s.mount)
	if err != nil {
		s.fail(w, r, "index", err)
		return
	}
	http.ServeContent(w, r, "index.html", startedAt, bytes.NewReader(page))
}

type statusResponse struct {
	Worker       schema.ProcessState `json:"worker"`
	Available    bool                `json:"available"`
	Widgets      int                 `json:"widgets"`
	History      int                 `json:"history"`
	HistoryFresh bool                `json:"history_fresh"`
	Version      string              `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, fresh := s.bridge.History()
	writeJSON(w, http.StatusOK, statusResponse{
		Worker:       s.bridge.WorkerState(),
		Available:    s.bridge.Available(),
		Widgets:      len(s.bridge.Presentations()),
		History:      len(entries),
		HistoryFresh: fresh,
		Version:      version.Current(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Ping(r.Context()); err != nil {
		s.fail(w, r, "ping", err)
		return
	}
	writeAccepted(w)
}

type convertRequest struct {
	Path    string                 `json:"path"`
	Options *schema.ConvertOptions `json:"options,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts := s.cfg.Convert
	if req.Options != nil {
		opts = *req.Options
	}
	if err := s.bridge.SubmitConvert(r.Context(), req.Path, opts); err != nil {
		s.fail(w, r, "convert", err)
		return
	}
	writeAccepted(w)
}

type saveRequest struct {
	ASCII    string            `json:"ascii"`
	Filename string            `json:"filename,omitempty"`
	Format   schema.SaveFormat `json:"format,omitempty"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.bridge.SubmitSave(r.Context(), req.ASCII, req.Filename, req.Format); err != nil {
		s.fail(w, r, "save", err)
		return
	}
	writeAccepted(w)
}

type historyResponse struct {
	Entries []schema.HistoryEntry `json:"entries"`
	Fresh   bool                  `json:"fresh"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, fresh := s.bridge.History()
	if entries == nil {
		entries = []schema.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries, Fresh: fresh})
}

func (s *Server) handleHistoryRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.RequestHistory(r.Context()); err != nil {
		s.fail(w, r, "history refresh", err)
		return
	}
	writeAccepted(w)
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: history index must be an integer", schema.ErrInvalidRequest))
		return
	}
	if err := s.bridge.DeleteHistoryAt(r.Context(), index); err != nil {
		s.fail(w, r, "history delete", err)
		return
	}
	writeAccepted(w)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	state := s.bridge.WorkerState()
	initial := StreamEvent{Type: EventWorker, Worker: &state, Timestamp: time.Now()}
	s.stream(w, r, BackendTopic, initial, pslog.Ctx(r.Context()))
}

func (s *Server) handleWidgetList(w http.ResponseWriter, r *http.Request) {
	widgets := s.bridge.Presentations()
	if widgets == nil {
		widgets = []schema.WidgetSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"widgets": widgets})
}

type openResponse struct {
	ID  schema.WidgetID `json:"id"`
	URL string          `json:"url"`
}

func (s *Server) handleWidgetOpen(w http.ResponseWriter, r *http.Request) {
	var payload schema.PresentationPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.bridge.OpenPresentation(r.Context(), payload)
	if err != nil {
		s.fail(w, r, "widget open", err)
		return
	}
	writeJSON(w, http.StatusCreated, openResponse{ID: id, URL: "widgets/" + string(id)})
}

func (s *Server) handleWidgetClose(w http.ResponseWriter, r *http.Request) {
	id := schema.WidgetID(r.PathValue("id"))
	if !s.bridge.ClosePresentation(r.Context(), id) {
		writeError(w, http.StatusNotFound, schema.ErrWidgetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": id})
}

type moveRequest struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

func (s *Server) handleWidgetMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := schema.WidgetID(r.PathValue("id"))
	if err := s.bridge.RelocatePresentation(id, req.DX, req.DY); err != nil {
		s.fail(w, r, "widget move", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWidgetAction(w http.ResponseWriter, r *http.Request) {
	action, err := schema.ParseWidgetAction(r.PathValue("action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot, err := s.bridge.ControlPresentation(schema.WidgetID(r.PathValue("id")), action)
	if err != nil {
		s.fail(w, r, "widget action", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleWidgetDocument(w http.ResponseWriter, r *http.Request) {
	id := schema.WidgetID(r.PathValue("id"))
	path, ok := s.hub.Document(id)
	if ok && path != "" {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, path)
		return
	}
	snapshot, found := s.lookupWidget(id)
	if !found {
		writeError(w, http.StatusNotFound, schema.ErrWidgetNotFound)
		return
	}
	doc, err := widget.RenderDocument(snapshot)
	if err != nil {
		s.fail(w, r, "widget document", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(doc)
}

func (s *Server) handleWidgetEvents(w http.ResponseWriter, r *http.Request) {
	id := schema.WidgetID(r.PathValue("id"))
	snapshot, found := s.lookupWidget(id)
	if !found {
		writeError(w, http.StatusNotFound, schema.ErrWidgetNotFound)
		return
	}
	initial := StreamEvent{Type: EventSnapshot, WidgetID: id, Widget: &snapshot, Timestamp: time.Now()}
	s.stream(w, r, string(id), initial, logx.WidgetCtx(r.Context(), id))
}

func (s *Server) lookupWidget(id schema.WidgetID) (schema.WidgetSnapshot, bool) {
	for _, snapshot := range s.bridge.Presentations() {
		if snapshot.ID == id {
			return snapshot, true
		}
	}
	return schema.WidgetSnapshot{}, false
}

// stream writes the initial event, replays what the client missed according
// to Last-Event-ID, then follows the topic until the client leaves or the
// topic is retired.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, topic string, initial StreamEvent, log pslog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	ch, unsubscribe, seq, err := s.hub.Subscribe(topic)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer unsubscribe()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	_ = writeSSEvent(w, initial)
	replayCount := 0
	if lastID > 0 && lastID < seq {
		replay := s.hub.Replay(topic, lastID, seq)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
		}
	}
	flusher.Flush()

	notify := r.Context().Done()
	log.Info("http stream opened", "topic", topic, "last_id", lastID, "replay", replayCount)
	for {
		select {
		case <-notify:
			log.Info("http stream closed", "topic", topic)
			return
		case event, ok := <-ch:
			if !ok {
				log.Info("http stream ended", "topic", topic)
				return
			}
			if event.Seq <= seq {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		pslog.Ctx(r.Context()).Warn("http request failed", "op", op, "status", status, "err", err)
	}
	writeError(w, status, err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidPayload),
		errors.Is(err, schema.ErrInvalidAction),
		errors.Is(err, schema.ErrHistoryIndex):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrWidgetNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrStaleHistory):
		return http.StatusConflict
	case errors.Is(err, schema.ErrNotRunning), errors.Is(err, schema.ErrProcessExited):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeAccepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "submitted"})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeSSEvent writes a named SSE event; the name is the event type so
// browsers can attach per-type listeners.
func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	if event.Type != "" && event.Type != EventMessage {
		_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
