package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"workshop-reminders/internal/db"
	"workshop-reminders/internal/models"
	"workshop-reminders/internal/parser"
	"workshop-reminders/internal/schedule"

	"github.com/gorilla/mux"
)

// Server represents the API server
type Server struct {
	db     *db.Database
	router *mux.Router

	// now is the clock used for generation runs; overridable in tests
	now func() time.Time
}

// NewServer creates a new API server
func NewServer(database *db.Database) *Server {
	s := &Server{
		db:     database,
		router: mux.NewRouter(),
		now:    time.Now,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Vehicle endpoints
	s.router.HandleFunc("/api/v1/vehicles", s.handleListVehicles).Methods("GET")
	s.router.HandleFunc("/api/v1/vehicles", s.handleCreateVehicle).Methods("POST")
	s.router.HandleFunc("/api/v1/vehicles/{plate}", s.handleGetVehicle).Methods("GET")
	s.router.HandleFunc("/api/v1/vehicles/{plate}/service", s.handleRecordService).Methods("POST")

	// Rules endpoints
	s.router.HandleFunc("/api/v1/rules", s.handleGetRules).Methods("GET")
	s.router.HandleFunc("/api/v1/rules", s.handleSaveRules).Methods("PUT")

	// Reminder queue endpoints
	s.router.HandleFunc("/api/v1/reminders", s.handleListReminders).Methods("GET")
	s.router.HandleFunc("/api/v1/reminders/generate", s.handleGenerate).Methods("POST")
	s.router.HandleFunc("/api/v1/reminders/dismissed", s.handlePurgeDismissed).Methods("DELETE")
	s.router.HandleFunc("/api/v1/reminders/{id}/status", s.handleSetStatus).Methods("POST")

	// Stats endpoint
	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")

	// Add middleware
	s.router.Use(loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.db.ListVehicles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	v.Plate = models.NormalizePlate(v.Plate)
	if errs := parser.ValidateVehicle(&v); len(errs) > 0 {
		respondError(w, http.StatusBadRequest, errs[0])
		return
	}

	if err := s.db.InsertVehicle(&v); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	plate := vars["plate"]

	vehicle, err := s.db.GetVehicle(plate)
	if err != nil {
		respondError(w, http.StatusNotFound, "vehicle not found")
		return
	}

	respondJSON(w, http.StatusOK, vehicle)
}

func (s *Server) handleRecordService(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	plate := vars["plate"]

	var req struct {
		Odo  int    `json:"odo"`
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Date == "" {
		req.Date = s.now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if req.Odo < 0 {
		respondError(w, http.StatusBadRequest, "odo cannot be negative")
		return
	}

	if err := s.db.UpdateVehicleService(plate, req.Odo, req.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	vehicle, err := s.db.GetVehicle(plate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, vehicle)
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.db.LoadRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

func (s *Server) handleSaveRules(w http.ResponseWriter, r *http.Request) {
	var rules models.Rules
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.db.SaveRules(rules); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	saved, err := s.db.LoadRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := models.ReminderQuery{
		Search: r.URL.Query().Get("q"),
		Limit:  100, // default
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := models.Status(v)
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "unknown status: "+v)
			return
		}
		q.Status = status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}

	results, err := s.db.ListReminders(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	queryMs := time.Since(start).Milliseconds()
	respondWithMeta(w, results, &meta{
		Total:   len(results),
		Limit:   q.Limit,
		Offset:  q.Offset,
		QueryMs: queryMs,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.db.ListVehicles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rules, err := s.db.LoadRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	existing, err := s.db.ListReminders(models.ReminderQuery{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := schedule.Generate(vehicles, rules, existing, s.now())

	if len(entries) > 0 {
		if _, err := s.db.InsertReminders(entries); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"generated": len(entries),
		"entries":   entries,
	})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var req struct {
		Status models.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "status must be pending, sent or dismissed")
		return
	}

	updated, err := s.db.SetReminderStatus(id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusNotFound, "reminder not found")
		case errors.Is(err, models.ErrInvalidTransition):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handlePurgeDismissed(w http.ResponseWriter, r *http.Request) {
	removed, err := s.db.PurgeDismissed()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
