// Package api exposes the service over HTTP: plant records, diagnostics and
// the wizard flows, each wizard session addressed by a generated id.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plantbook/internal/diagnostics"
	"plantbook/internal/ha"
	"plantbook/internal/plant"
	"plantbook/internal/sensor"
	"plantbook/internal/store"
	"plantbook/internal/wizard"
)

// Deps bundles everything the server serves.
type Deps struct {
	Store     store.Store
	Publisher ha.SensorPublisher
	Scheduler *wizard.ReauthScheduler

	// ResetAPI discards any cached plant API client. It runs after a setup
	// or re-auth session stores credentials, so searches pick up the new
	// client id and secret immediately.
	ResetAPI func()

	// Flow constructors, so each session gets a fresh state machine.
	NewSetup       func() *wizard.SetupFlow
	NewReauth      func() *wizard.SetupFlow
	NewPlantFlow   func() *wizard.PlantFlow
	NewOptionsFlow func() *wizard.OptionsFlow
}

// Server provides the HTTP API.
type Server struct {
	deps   Deps
	logger *zap.Logger
	server *http.Server

	mu       sync.Mutex
	setups   map[string]*setupSession
	plants   map[string]*wizard.PlantFlow
	optFlows map[string]*wizard.OptionsFlow
}

// setupSession tracks the credential entry a re-auth session was scheduled
// under, so finishing it clears the pending mark.
type setupSession struct {
	flow    *wizard.SetupFlow
	entryID string
	reauth  bool
}

// NewServer creates the API server listening on addr.
func NewServer(deps Deps, logger *zap.Logger, addr string) *Server {
	s := &Server{
		deps:     deps,
		logger:   logger.Named("api"),
		setups:   make(map[string]*setupSession),
		plants:   make(map[string]*wizard.PlantFlow),
		optFlows: make(map[string]*wizard.OptionsFlow),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/plants", s.handleListPlants)
	mux.HandleFunc("GET /api/plants/{deviceID}", s.handleGetPlant)
	mux.HandleFunc("DELETE /api/plants/{deviceID}", s.handleDeletePlant)
	mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)

	mux.HandleFunc("POST /api/wizard/setup", s.handleStartSetup)
	mux.HandleFunc("POST /api/wizard/reauth", s.handleStartReauth)
	mux.HandleFunc("POST /api/wizard/setup/{sessionID}/credentials", s.handleCredentials)
	mux.HandleFunc("POST /api/wizard/setup/{sessionID}/image_config", s.handleImageConfig)

	mux.HandleFunc("POST /api/wizard/plant", s.handleStartPlant)
	mux.HandleFunc("POST /api/wizard/plant/{sessionID}/name", s.handlePlantName)
	mux.HandleFunc("POST /api/wizard/plant/{sessionID}/choice", s.handlePlantChoice)
	mux.HandleFunc("POST /api/wizard/plant/{sessionID}/select", s.handlePlantSelect)
	mux.HandleFunc("POST /api/wizard/plant/{sessionID}/configure", s.handlePlantConfigure)

	mux.HandleFunc("POST /api/wizard/reconfigure/{deviceID}", s.handleStartReconfigure)
	mux.HandleFunc("POST /api/wizard/reconfigure/{deviceID}/submit", s.handleSubmitReconfigure)

	mux.HandleFunc("POST /api/wizard/options", s.handleStartOptions)
	mux.HandleFunc("POST /api/wizard/options/{sessionID}/submit", s.handleSubmitOptions)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// resultResponse is the wire form of a wizard result.
type resultResponse struct {
	SessionID       string              `json:"session_id,omitempty"`
	Kind            string              `json:"kind"`
	Step            wizard.Step         `json:"step,omitempty"`
	Errors          map[string]string   `json:"errors,omitempty"`
	Defaults        *wizard.ConfigInput `json:"defaults,omitempty"`
	Options         []wizard.Option     `json:"options,omitempty"`
	CategoryOptions []string            `json:"category_options,omitempty"`
	PlantName       string              `json:"plant_name,omitempty"`
	ClientID        string              `json:"client_id,omitempty"`
	Reason          string              `json:"reason,omitempty"`
	Record          *plant.Record       `json:"record,omitempty"`
	ImageConfig     *imagePolicy        `json:"image_config,omitempty"`
}

// imagePolicy is the non-secret slice of the stored credentials, shown as
// the current values on the options and image-config forms. The client
// secret never crosses the wire.
type imagePolicy struct {
	DownloadImages bool   `json:"download_images"`
	DownloadPath   string `json:"download_path"`
}

func kindString(k wizard.Kind) string {
	switch k {
	case wizard.KindCreated:
		return "created"
	case wizard.KindUpdated:
		return "updated"
	case wizard.KindAborted:
		return "aborted"
	default:
		return "form"
	}
}

func toResponse(sessionID string, res *wizard.Result) resultResponse {
	var policy *imagePolicy
	if res.Credentials != nil {
		policy = &imagePolicy{
			DownloadImages: res.Credentials.DownloadImages,
			DownloadPath:   res.Credentials.DownloadPath,
		}
	}
	return resultResponse{
		SessionID:       sessionID,
		Kind:            kindString(res.Kind),
		Step:            res.Step,
		Errors:          res.Errors,
		Defaults:        res.Defaults,
		Options:         res.Options,
		CategoryOptions: res.CategoryOptions,
		PlantName:       res.PlantName,
		ClientID:        res.ClientID,
		Reason:          res.Reason,
		Record:          res.Record,
		ImageConfig:     policy,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// plantResponse pairs the stored record with its materialized sensor.
type plantResponse struct {
	Record *plant.Record  `json:"record"`
	Sensor *sensor.Sensor `json:"sensor"`
}

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	recs := s.deps.Store.List()
	out := make([]plantResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, plantResponse{Record: rec, Sensor: sensor.Materialize(rec)})
	}
	s.writeJSON(w, http.StatusOK, out)
	s.logger.Debug("Plant list served",
		zap.Int("count", len(out)),
		zap.String("remote_addr", r.RemoteAddr))
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	rec, ok := s.deps.Store.Get(deviceID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	s.writeJSON(w, http.StatusOK, plantResponse{Record: rec, Sensor: sensor.Materialize(rec)})
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	if _, ok := s.deps.Store.Get(deviceID); !ok {
		s.writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	if err := s.deps.Store.Delete(deviceID); err != nil {
		s.logger.Error("Failed to delete plant record",
			zap.String("device_id", deviceID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.UnpublishPlant(deviceID); err != nil {
			s.logger.Warn("Failed to retract plant sensor",
				zap.String("device_id", deviceID),
				zap.Error(err))
		}
	}
	s.logger.Info("Plant record deleted", zap.String("device_id", deviceID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, diagnostics.Export(s.deps.Store))
}

func (s *Server) handleStartSetup(w http.ResponseWriter, _ *http.Request) {
	s.startSetupSession(w, s.deps.NewSetup(), false)
}

func (s *Server) handleStartReauth(w http.ResponseWriter, _ *http.Request) {
	s.startSetupSession(w, s.deps.NewReauth(), true)
}

func (s *Server) startSetupSession(w http.ResponseWriter, flow *wizard.SetupFlow, reauth bool) {
	res := flow.Begin()
	if res.Kind != wizard.KindForm {
		s.writeJSON(w, http.StatusOK, toResponse("", res))
		return
	}

	sess := &setupSession{flow: flow, reauth: reauth}
	if creds, ok := s.deps.Store.Credentials(); ok {
		sess.entryID = creds.ClientID
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.setups[id] = sess
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

func (s *Server) setupSession(id string) (*setupSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.setups[id]
	return sess, ok
}

// finishSetup drops the session and, for a re-auth session, clears the
// pending mark. When the session stored credentials, the cached API client
// is discarded so the next search authenticates with them.
func (s *Server) finishSetup(id string, sess *setupSession, res *wizard.Result) {
	s.mu.Lock()
	delete(s.setups, id)
	s.mu.Unlock()
	if sess.reauth && s.deps.Scheduler != nil && sess.entryID != "" {
		s.deps.Scheduler.Done(sess.entryID)
	}
	if (res.Kind == wizard.KindCreated || res.Kind == wizard.KindUpdated) && s.deps.ResetAPI != nil {
		s.deps.ResetAPI()
	}
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	sess, ok := s.setupSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body struct {
		ClientID string `json:"client_id"`
		Secret   string `json:"secret"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := sess.flow.SubmitCredentials(r.Context(), body.ClientID, body.Secret)
	if res.Kind != wizard.KindForm {
		s.finishSetup(id, sess, res)
	}
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

func (s *Server) handleImageConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	sess, ok := s.setupSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body struct {
		DownloadImages bool   `json:"download_images"`
		DownloadPath   string `json:"download_path"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := sess.flow.SubmitImageConfig(body.DownloadImages, body.DownloadPath)
	if res.Kind != wizard.KindForm {
		s.finishSetup(id, sess, res)
	}
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

func (s *Server) handleStartPlant(w http.ResponseWriter, _ *http.Request) {
	flow := s.deps.NewPlantFlow()
	res := flow.Begin()
	if res.Kind != wizard.KindForm {
		s.writeJSON(w, http.StatusOK, toResponse("", res))
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.plants[id] = flow
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

func (s *Server) plantSession(id string) (*wizard.PlantFlow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.plants[id]
	return flow, ok
}

// finishPlant drops the session and announces a created record.
func (s *Server) finishPlant(id string, res *wizard.Result) {
	s.mu.Lock()
	delete(s.plants, id)
	s.mu.Unlock()

	if res.Kind == wizard.KindCreated && res.Record != nil && s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishPlant(res.Record); err != nil {
			s.logger.Warn("Failed to publish new plant sensor",
				zap.String("device_id", res.Record.DeviceID),
				zap.Error(err))
		}
	}
}

func (s *Server) servePlantResult(w http.ResponseWriter, id string, res *wizard.Result) {
	if res.Kind != wizard.KindForm {
		s.finishPlant(id, res)
	}
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

func (s *Server) handlePlantName(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	flow, ok := s.plantSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.servePlantResult(w, id, flow.SubmitPlantName(r.Context(), body.Name))
}

func (s *Server) handlePlantChoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	flow, ok := s.plantSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.servePlantResult(w, id, flow.SubmitNoResultsChoice(body.Action))
}

func (s *Server) handlePlantSelect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	flow, ok := s.plantSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body struct {
		PID string `json:"pid"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.servePlantResult(w, id, flow.SubmitSelection(r.Context(), body.PID))
}

func (s *Server) handlePlantConfigure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	flow, ok := s.plantSession(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body wizard.ConfigInput
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.servePlantResult(w, id, flow.SubmitConfiguration(r.Context(), body))
}

func (s *Server) handleStartReconfigure(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	flow := s.deps.NewPlantFlow()
	s.writeJSON(w, http.StatusOK, toResponse("", flow.BeginReconfigure(deviceID)))
}

func (s *Server) handleSubmitReconfigure(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	var body wizard.ConfigInput
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flow := s.deps.NewPlantFlow()
	res := flow.SubmitReconfigure(deviceID, body)
	if res.Kind == wizard.KindUpdated && res.Record != nil && s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishPlant(res.Record); err != nil {
			s.logger.Warn("Failed to republish plant sensor",
				zap.String("device_id", deviceID),
				zap.Error(err))
		}
	}
	s.writeJSON(w, http.StatusOK, toResponse("", res))
}

func (s *Server) handleStartOptions(w http.ResponseWriter, _ *http.Request) {
	flow := s.deps.NewOptionsFlow()
	res := flow.Begin()
	if res.Kind != wizard.KindForm {
		s.writeJSON(w, http.StatusOK, toResponse("", res))
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.optFlows[id] = flow
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

func (s *Server) handleSubmitOptions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	s.mu.Lock()
	flow, ok := s.optFlows[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var body struct {
		DownloadImages bool   `json:"download_images"`
		DownloadPath   string `json:"download_path"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := flow.Submit(body.DownloadImages, body.DownloadPath)
	if res.Kind != wizard.KindForm {
		s.mu.Lock()
		delete(s.optFlows, id)
		s.mu.Unlock()
	}
	s.writeJSON(w, http.StatusOK, toResponse(id, res))
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
