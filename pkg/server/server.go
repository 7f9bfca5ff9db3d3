// Package server is the HTTP boundary: serial intake and validation, label
// generation, compliance verification, run dispatch, statistics, history,
// and the websocket status stream.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hexmodal/marathon/pkg/labels"
	"github.com/hexmodal/marathon/pkg/ledger"
	"github.com/hexmodal/marathon/pkg/logging"
	"github.com/hexmodal/marathon/pkg/robot"
	"github.com/hexmodal/marathon/pkg/serials"
	"github.com/hexmodal/marathon/pkg/status"
	"github.com/hexmodal/marathon/pkg/verify"
)

// Runner executes workflow runs. Satisfied by *robot.Robot.
type Runner interface {
	RunMarathon(req robot.Request) (bool, error)
	Running() bool
}

// StatusStream carries run progress to websocket subscribers. Satisfied by
// *status.Hub.
type StatusStream interface {
	status.Notifier
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Verifier checks serials against the compliance API. Satisfied by
// *verify.Client.
type Verifier interface {
	VerifySerials(ctx context.Context, list []string, creds verify.Credentials) map[string]string
}

// historyPageSize bounds the history endpoint's response.
const historyPageSize = 20

// Server wires the HTTP handlers to the domain components.
type Server struct {
	runner   Runner
	ledger   *ledger.Ledger
	labels   *labels.Renderer
	verifier Verifier
	stream   StatusStream
	log      *logging.Logger
	validate *validator.Validate
	router   chi.Router
}

// New assembles the server and its routes.
func New(runner Runner, l *ledger.Ledger, renderer *labels.Renderer, verifier Verifier, stream StatusStream, log *logging.Logger) *Server {
	s := &Server{
		runner:   runner,
		ledger:   l,
		labels:   renderer,
		verifier: verifier,
		stream:   stream,
		log:      log,
		validate: validator.New(),
	}

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Post("/detect-product", s.handleDetectProduct)
		r.Post("/validate-serials", s.handleValidateSerials)
		r.Post("/generate-labels", s.handleGenerateLabels)
		r.Post("/download-labels-pdf", s.handleDownloadLabelsPDF)
		r.Post("/verify-serials", s.handleVerifySerials)
		r.Post("/marathon", s.handleMarathon)
		r.Get("/stats", s.handleStats)
		r.Get("/history", s.handleHistory)
		r.Get("/devices", s.handleDevices)
	})
	router.Get("/ws", s.stream.HandleWebSocket)
	s.router = router

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleDetectProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Serial string `json:"serial"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	product, _ := serials.DetectProduct(req.Serial)
	respondJSON(w, http.StatusOK, map[string]string{"product": product})
}

func (s *Server) handleValidateSerials(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Serials string `json:"serials"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	respondJSON(w, http.StatusOK, serials.Validate(serials.Clean(req.Serials)))
}

type labelEntry struct {
	Serial string `json:"serial"`
	Image  string `json:"image"`
}

func (s *Server) handleGenerateLabels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Serials []string `json:"serials"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	entries := make([]labelEntry, 0, len(req.Serials))
	for _, serial := range req.Serials {
		png, err := s.labels.LabelPNG(serial)
		if err != nil {
			s.log.Errorf("label render failed for %s: %v", serial, err)
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, labelEntry{
			Serial: serial,
			Image:  base64.StdEncoding.EncodeToString(png),
		})
	}
	respondJSON(w, http.StatusOK, map[string][]labelEntry{"labels": entries})
}

func (s *Server) handleDownloadLabelsPDF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Serials []string `json:"serials"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Serials) == 0 {
		respondError(w, http.StatusBadRequest, "No serials provided")
		return
	}

	pdf, err := s.labels.LabelsPDF(req.Serials)
	if err != nil {
		s.log.Errorf("label PDF failed: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("labels_%s.pdf", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleVerifySerials(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Serials       string `json:"serials"`
		SessionCookie string `json:"session_cookie"`
		CSRFToken     string `json:"csrf_token"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	list := serials.Clean(req.Serials)
	if len(list) == 0 {
		respondError(w, http.StatusBadRequest, "No serials")
		return
	}

	s.stream.Emit(fmt.Sprintf("Verifying %d serials...", len(list)), status.SeverityInfo)

	results := s.verifier.VerifySerials(r.Context(), list, verify.Credentials{
		SessionCookie: req.SessionCookie,
		CSRFToken:     req.CSRFToken,
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"summary": verify.Summarize(results),
	})
}

type marathonRequest struct {
	Serials      string `json:"serials" validate:"required"`
	Product      string `json:"product"`
	OdooEmail    string `json:"odoo_email" validate:"required"`
	OdooPassword string `json:"odoo_password" validate:"required"`
}

// handleMarathon validates the request, resolves the product, and dispatches
// the run to a goroutine. The response only acknowledges dispatch; progress
// and the outcome stream over the websocket, and the ledger records every
// run that actually starts.
func (s *Server) handleMarathon(w http.ResponseWriter, r *http.Request) {
	var req marathonRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Odoo credentials and serials are required")
		return
	}

	list := serials.Clean(req.Serials)
	if len(list) == 0 {
		respondError(w, http.StatusBadRequest, "No valid serials provided")
		return
	}

	product := req.Product
	if product == "" {
		detected, ok := serials.DetectProduct(list[0])
		if !ok {
			respondError(w, http.StatusBadRequest, "Could not detect product - please select manually")
			return
		}
		product = detected
	}

	if s.runner.Running() {
		respondError(w, http.StatusConflict, "A production run is already in progress")
		return
	}

	go s.dispatchRun(robot.Request{
		Product:  product,
		Serials:  list,
		Email:    req.OdooEmail,
		Password: req.OdooPassword,
	})

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"count":   len(list),
		"product": product,
	})
}

func (s *Server) dispatchRun(req robot.Request) {
	ok, err := s.runner.RunMarathon(req)
	if err != nil {
		// Rejected before starting (lost the race to another run); nothing
		// to record.
		s.log.Warnf("run dispatch rejected: %v", err)
		return
	}
	if err := s.ledger.Record(req.Serials, req.Product, ok); err != nil {
		s.log.Errorf("ledger record failed: %v", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"today": s.ledger.Today(),
		"all":   s.ledger.Stats(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ledger.History(historyPageSize))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"devices": serials.DeviceNames})
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
