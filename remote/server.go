package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"midiseq/debug"
	"midiseq/midi"
	"midiseq/sequencer"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"detail"`
}

type TransportResponse struct {
	State    string  `json:"state"`
	Position uint64  `json:"position"`
	Beat     float64 `json:"beat"`
	Tempo    float64 `json:"tempo"`
	PPQN     int     `json:"ppqn"`
}

type StatsResponse struct {
	Dispatched uint64 `json:"dispatched"`
	Dropped    uint64 `json:"dropped"`
}

type IDResponse struct {
	ID any `json:"id"`
}

type Event struct {
	Tick       uint64                `json:"tick"`
	ID         uuid.UUID             `json:"id"`
	Kind       string                `json:"kind"`
	Key        uint8                 `json:"key"`
	Velocity   uint8                 `json:"velocity"`
	Active     bool                  `json:"active"`
	Instrument *sequencer.Instrument `json:"instrument,omitempty"`
}

// EventRequest places one event. Active defaults to true.
type EventRequest struct {
	Kind       string                `json:"kind"`
	Key        uint8                 `json:"key"`
	Velocity   uint8                 `json:"velocity"`
	Active     *bool                 `json:"active,omitempty"`
	Instrument *sequencer.Instrument `json:"instrument,omitempty"`
}

type BlockRequest struct {
	Tick     uint64    `json:"tick"`
	Duration uint32    `json:"duration"`
	Note     midi.Note `json:"note"`
}

// Server exposes Storage edits and transport commands over HTTP.
type Server struct {
	storage *sequencer.Storage
	seq     *sequencer.Sequencer
	handler http.Handler
}

// New builds the API. An empty origins list allows any origin.
func New(storage *sequencer.Storage, seq *sequencer.Sequencer, origins []string) *Server {
	s := &Server{storage: storage, seq: seq}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(logRequests)
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/transport", s.handleTransport).Methods("GET")
	api.HandleFunc("/transport/{command}", s.handleCommand).Methods("POST")
	api.HandleFunc("/tempo", s.handleTempo).Methods("PUT")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	api.HandleFunc("/tracks", s.handleTracks).Methods("GET")
	api.HandleFunc("/tracks", s.handleAddTrack).Methods("POST")
	api.HandleFunc("/tracks", s.handleRemoveTrack).Methods("DELETE")
	api.HandleFunc("/tracks/{track:[0-9]+}/{field:name|port|channel|muted|solo}", s.handleTrackField).Methods("PUT")
	api.HandleFunc("/tracks/{track:[0-9]+}/clips", s.handleAddClip).Methods("POST")

	api.HandleFunc("/clips/{clip:[0-9]+}", s.handleRemoveClip).Methods("DELETE")
	api.HandleFunc("/clips/{clip:[0-9]+}/events", s.handleClipEvents).Methods("GET")
	api.HandleFunc("/clips/{clip:[0-9]+}/blocks", s.handleAddBlock).Methods("POST")
	api.HandleFunc("/clips/{clip:[0-9]+}/blocks/{block}", s.handleCancelBlock).Methods("DELETE")
	api.HandleFunc("/clips/{clip:[0-9]+}/events/{tick:[0-9]+}", s.handleInsertEvent).Methods("PUT")
	api.HandleFunc("/clips/{clip:[0-9]+}/events/{tick:[0-9]+}", s.handleSetActive).Methods("PATCH")
	api.HandleFunc("/clips/{clip:[0-9]+}/events/{tick:[0-9]+}", s.handleRemoveEvent).Methods("DELETE")

	api.HandleFunc("/events", s.handleAllEvents).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(router)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		debug.Log("remote", "listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		debug.Log("remote", "stopped")
		return nil
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		debug.Verbose("remote", "%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Warn("remote", "encode response: %v", err)
	}
}

// errBadRequest marks malformed input that never reached Storage
var errBadRequest = errors.New("bad request")

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, sequencer.ErrInvalidParameter),
		errors.Is(err, sequencer.ErrInvalidDuration),
		errors.Is(err, sequencer.ErrOverflow):
		status = http.StatusBadRequest
	case errors.Is(err, sequencer.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		debug.Warn("remote", "%v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, errBadRequest)
	}
	return nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %v: %w", name, err, errBadRequest)
	}
	return v, nil
}

func (s *Server) transport() TransportResponse {
	tr := s.storage.Transport()
	ppqn := s.storage.PPQN()
	return TransportResponse{
		State:    tr.State.String(),
		Position: uint64(tr.Position),
		Beat:     tr.Position.AsBeat(ppqn),
		Tempo:    s.storage.Tempo(),
		PPQN:     ppqn,
	}
}

func (s *Server) handleTransport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.transport())
}

// handleCommand queues a transport command. The effect is visible on a
// later GET /transport.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := sequencer.ParseCommand(mux.Vars(r)["command"])
	if err != nil {
		writeError(w, err)
		return
	}
	select {
	case s.seq.Commands() <- cmd:
		writeJSON(w, http.StatusAccepted, s.transport())
	default:
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "transport queue full"})
	}
}

func (s *Server) handleTempo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BPM float64 `json:"bpm"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.storage.SetTempo(body.BPM); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.transport())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Dispatched: s.seq.Dispatched(),
		Dropped:    s.seq.Dropped(),
	})
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.storage.Tracks())
}

func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, IDResponse{ID: s.storage.AddTrack()})
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	id, err := s.storage.RemoveTrack()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

func (s *Server) handleTrackField(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "track")
	if err != nil {
		writeError(w, err)
		return
	}
	id := sequencer.TrackID(n)

	var body struct {
		Name    *string `json:"name"`
		Port    *int    `json:"port"`
		Channel *int    `json:"channel"`
		Muted   *bool   `json:"muted"`
		Solo    *bool   `json:"solo"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	field := mux.Vars(r)["field"]
	missing := fmt.Errorf("body needs %q: %w", field, errBadRequest)
	switch field {
	case "name":
		if body.Name == nil {
			err = missing
		} else {
			err = s.storage.SetTrackName(id, *body.Name)
		}
	case "port":
		if body.Port == nil {
			err = missing
		} else {
			err = s.storage.SetTrackPort(id, *body.Port)
		}
	case "channel":
		if body.Channel == nil {
			err = missing
		} else {
			err = s.storage.SetTrackChannel(id, *body.Channel)
		}
	case "muted":
		if body.Muted == nil {
			err = missing
		} else {
			err = s.storage.SetTrackMuted(id, *body.Muted)
		}
	case "solo":
		if body.Solo == nil {
			err = missing
		} else {
			err = s.storage.SetTrackSolo(id, *body.Solo)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	tracks := s.storage.Tracks()
	if int(id) < len(tracks) {
		writeJSON(w, http.StatusOK, tracks[id])
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddClip(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "track")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Name       string                `json:"name"`
		Instrument *sequencer.Instrument `json:"instrument"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	clip := sequencer.NewClip(body.Name)
	clip.Instrument = body.Instrument
	if err := s.storage.AddClip(sequencer.TrackID(n), clip); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: clip.ID})
}

func (s *Server) handleRemoveClip(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.storage.RemoveClip(sequencer.ClipID(n)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toEvents(items []sequencer.Timed) []Event {
	out := make([]Event, len(items))
	for i, it := range items {
		out[i] = Event{
			Tick:       uint64(it.Tick),
			ID:         it.Entry.ID,
			Kind:       it.Entry.Message.Kind.String(),
			Key:        it.Entry.Message.Key,
			Velocity:   it.Entry.Message.Velocity,
			Active:     it.Entry.Active,
			Instrument: it.Entry.Instrument,
		}
	}
	return out
}

func (s *Server) handleClipEvents(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	events, ok := s.storage.ClipEvents(sequencer.ClipID(n))
	if !ok {
		writeError(w, fmt.Errorf("clip %d: %w", n, sequencer.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toEvents(events))
}

func (s *Server) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toEvents(s.storage.AllEvents()))
}

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	var body BlockRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.storage.InsertEventBlock(sequencer.ClipID(n), sequencer.Tick(body.Tick), body.Duration, body.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (s *Server) handleCancelBlock(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	block, err := uuid.Parse(mux.Vars(r)["block"])
	if err != nil {
		writeError(w, fmt.Errorf("block id: %v: %w", err, errBadRequest))
		return
	}
	if err := s.storage.CancelBlock(sequencer.ClipID(n), block); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInsertEvent(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	tick, err := pathUint(r, "tick")
	if err != nil {
		writeError(w, err)
		return
	}
	var body EventRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	kind, err := midi.ParseKind(body.Kind)
	if err != nil {
		writeError(w, fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}

	entry := sequencer.NewEntry(midi.Message{Kind: kind, Key: body.Key, Velocity: body.Velocity})
	if body.Active != nil {
		entry.Active = *body.Active
	}
	entry.Instrument = body.Instrument
	if err := s.storage.InsertEvent(sequencer.ClipID(n), sequencer.Tick(tick), entry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: entry.ID})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	tick, err := pathUint(r, "tick")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Active == nil {
		writeError(w, fmt.Errorf("body needs \"active\": %w", errBadRequest))
		return
	}
	if err := s.storage.SetEventActive(sequencer.ClipID(n), sequencer.Tick(tick), *body.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveEvent(w http.ResponseWriter, r *http.Request) {
	n, err := pathUint(r, "clip")
	if err != nil {
		writeError(w, err)
		return
	}
	tick, err := pathUint(r, "tick")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.storage.RemoveEvent(sequencer.ClipID(n), sequencer.Tick(tick)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
