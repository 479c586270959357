package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/psantana5/scraperd/internal/store"
	"github.com/psantana5/scraperd/internal/supervisor"
	"github.com/psantana5/scraperd/pkg/logging"
)

const defaultEventLimit = 50

// Handler exposes the supervisor's operator surface over HTTP
type Handler struct {
	sup     *supervisor.Supervisor
	store   store.Store
	metrics http.Handler
	logger  *logging.Logger
}

// NewHandler creates a new API handler
func NewHandler(sup *supervisor.Supervisor, st store.Store, metrics http.Handler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Handler{
		sup:     sup,
		store:   st,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/workers", h.ListWorkers).Methods("GET")
	r.HandleFunc("/workers/{name}", h.GetWorker).Methods("GET")
	r.HandleFunc("/workers/{name}/restart", h.RestartWorker).Methods("POST")
	r.HandleFunc("/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// WorkerInfo is a worker status enriched with process resource usage
type WorkerInfo struct {
	supervisor.WorkerStatus
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	RSSBytes   uint64  `json:"rss_bytes,omitempty"`
}

type workersResponse struct {
	Workers []WorkerInfo `json:"workers"`
	Count   int          `json:"count"`
}

// ListWorkers returns the status of the whole fleet
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	statuses := h.sup.Status()

	infos := make([]WorkerInfo, 0, len(statuses))
	for _, st := range statuses {
		infos = append(infos, enrich(st))
	}

	writeJSON(w, http.StatusOK, workersResponse{Workers: infos, Count: len(infos)})
}

// GetWorker returns the status of one worker
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	status, err := h.sup.WorkerStatus(name)
	if err != nil {
		http.Error(w, fmt.Sprintf("worker %q not found", name), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, enrich(status))
}

// RestartWorker triggers the restart protocol for one worker
func (h *Handler) RestartWorker(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	h.logger.Info(fmt.Sprintf("manual restart requested for worker %s", name),
		map[string]interface{}{"worker": name})

	if err := h.sup.Restart(name, supervisor.ReasonManual); err != nil {
		http.Error(w, fmt.Sprintf("worker %q not found", name), http.StatusNotFound)
		return
	}

	status, _ := h.sup.WorkerStatus(name)
	writeJSON(w, http.StatusOK, enrich(status))
}

type eventsResponse struct {
	Events []*store.Event `json:"events"`
	Count  int            `json:"count"`
}

// ListEvents returns recent restart events, newest first
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "event history not configured", http.StatusNotFound)
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var (
		events []*store.Event
		err    error
	)
	if worker := r.URL.Query().Get("worker"); worker != "" {
		events, err = h.store.EventsByWorker(worker, limit)
	} else {
		events, err = h.store.RecentEvents(limit)
	}
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to read events: %v", err))
		http.Error(w, "failed to read events", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

// Health reports supervisor liveness and store reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.store != nil {
		if err := h.store.HealthCheck(); err != nil {
			status = fmt.Sprintf("store unhealthy: %v", err)
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// enrich attaches live resource usage when the worker has a running process
func enrich(st supervisor.WorkerStatus) WorkerInfo {
	info := WorkerInfo{WorkerStatus: st}
	if st.PID == 0 {
		return info
	}

	proc, err := process.NewProcess(int32(st.PID))
	if err != nil {
		return info
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		info.CPUPercent = cpuPercent
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		info.RSSBytes = memInfo.RSS
	}
	return info
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
