package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tenant-telemetry/internal/access"
	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/auth"
	"tenant-telemetry/internal/hub"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store"
)

// APIHandler obsluhuje tenkou REST vrstvu. Veškerá pravidla přístupu řeší access.Resolver.
type APIHandler struct {
	hub       *hub.Hub
	resolver  *access.Resolver
	readings  store.ReadingStore
	accessLog store.AccessLogStore
	auth      auth.Authenticator
	logger    *slog.Logger
}

func NewAPIHandler(h *hub.Hub, resolver *access.Resolver, stores store.Stores, a auth.Authenticator, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		hub:       h,
		resolver:  resolver,
		readings:  stores.Readings,
		accessLog: stores.AccessLog,
		auth:      a,
		logger:    logger,
	}
}

// RegisterRoutes mapuje URL cesty na handlery (router Go 1.22+ s metodami a wildcardy).
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sensors", h.authed(h.handleListSensors))
	mux.HandleFunc("GET /api/sensors/{sensorId}/latest", h.authed(h.handleLatest))
	mux.HandleFunc("GET /api/sensors/{sensorId}/range", h.authed(h.handleRange))

	mux.HandleFunc("POST /api/access", h.authed(h.handleGrant))
	mux.HandleFunc("DELETE /api/access", h.authed(h.handleRevoke))
	mux.HandleFunc("GET /api/access/me", h.authed(h.handleMyGrants))

	mux.HandleFunc("GET /api/logs", h.authed(h.handleLogs))
}

type principalHandler func(w http.ResponseWriter, r *http.Request, p model.Principal)

// authed ověří token a předá principala dál.
func (h *APIHandler) authed(next principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := auth.FromRequest(r, h.auth)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, p)
	}
}

// handleListSensors: GET /api/sensors
func (h *APIHandler) handleListSensors(w http.ResponseWriter, r *http.Request, p model.Principal) {
	views, err := h.hub.VisibleViews(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

// handleLatest: GET /api/sensors/{sensorId}/latest?limit=10
func (h *APIHandler) handleLatest(w http.ResponseWriter, r *http.Request, p model.Principal) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.writeError(w, r, apperr.Validation("limit musí být celé číslo"))
			return
		}
		limit = n
	}

	readings, err := h.hub.SensorData(r.Context(), p, r.PathValue("sensorId"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(readings))
}

// handleRange: GET /api/sensors/{sensorId}/range?start=1700000000&end=1700003600
// Bez parametrů vrací posledních 24 hodin.
func (h *APIHandler) handleRange(w http.ResponseWriter, r *http.Request, p model.Principal) {
	now := time.Now().UTC()
	from, err := epochParam(r, "start", now.Add(-24*time.Hour))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := epochParam(r, "end", now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if to.Before(from) {
		h.writeError(w, r, apperr.Validation("end je před start"))
		return
	}

	sensor, err := h.resolver.ResolveSensor(r.Context(), r.PathValue("sensorId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok, err := h.resolver.HasPermission(r.Context(), p, sensor, model.PermView)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, apperr.Forbidden("nemáte přístup k senzoru %s", sensor.SensorID))
		return
	}

	readings, err := h.readings.Range(r.Context(), sensor.SensorID, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(readings))
}

// grantRequest je tělo POST /api/access. canView je implicitně true.
type grantRequest struct {
	SensorID    string `json:"sensorId"`
	UserID      string `json:"userId"`
	CanView     *bool  `json:"canView"`
	CanEdit     bool   `json:"canEdit"`
	CanDelete   bool   `json:"canDelete"`
	Description string `json:"description"`
}

// handleGrant: POST /api/access
func (h *APIHandler) handleGrant(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperr.Validation("neplatné tělo požadavku: %v", err))
		return
	}

	g := model.AccessGrant{
		SensorID:    req.SensorID,
		UserID:      req.UserID,
		CanView:     req.CanView == nil || *req.CanView,
		CanEdit:     req.CanEdit,
		CanDelete:   req.CanDelete,
		Description: req.Description,
	}
	created, err := h.resolver.Grant(r.Context(), p, g)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// handleRevoke: DELETE /api/access?sensorId=...&userId=...
func (h *APIHandler) handleRevoke(w http.ResponseWriter, r *http.Request, p model.Principal) {
	q := r.URL.Query()
	sensorKey, userID := q.Get("sensorId"), q.Get("userId")
	if sensorKey == "" || userID == "" {
		h.writeError(w, r, apperr.Validation("sensorId a userId jsou povinné"))
		return
	}

	if err := h.resolver.Revoke(r.Context(), p, sensorKey, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMyGrants: GET /api/access/me
func (h *APIHandler) handleMyGrants(w http.ResponseWriter, r *http.Request, p model.Principal) {
	grants, err := h.resolver.GrantsOf(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(grants))
}

// handleLogs: GET /api/logs?userId=&sensorId= (jen PlatformAdmin)
func (h *APIHandler) handleLogs(w http.ResponseWriter, r *http.Request, p model.Principal) {
	if p.Role != model.RolePlatformAdmin {
		h.writeError(w, r, apperr.Forbidden("access log vidí jen správce platformy"))
		return
	}

	var (
		entries []model.AccessLogEntry
		err     error
	)
	q := r.URL.Query()
	switch {
	case q.Get("userId") != "":
		entries, err = h.accessLog.ByUser(r.Context(), q.Get("userId"))
	case q.Get("sensorId") != "":
		entries, err = h.accessLog.BySensor(r.Context(), q.Get("sensorId"))
	default:
		entries, err = h.accessLog.All(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(entries))
}

func epochParam(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, apperr.Validation("%s musí být unix čas v sekundách", key)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// nonNil zajistí, že prázdný výsledek se serializuje jako [] a ne null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("Požadavek selhal", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("Požadavek odmítnut", "path", r.URL.Path, "status", code, "error", err)
	}
	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// CorsMiddleware povolí volání API z prohlížeče z jiné domény.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// V produkci zde má být konkrétní doména dashboardu.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Preflight: prohlížeč se ptá "můžu?", odpovíme OK a končíme.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
