package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/itemstore"
	"github.com/stockbuddy/orchestrator/task"
	"github.com/stockbuddy/orchestrator/telemetry"
)

// Server wires the cancel endpoint over plain net/http. SSE streaming of
// orchestrator turns is served separately by TurnHandler.
type Server struct {
	mux   *http.ServeMux
	tasks task.Store
	items itemstore.Store
	log   telemetry.Logger
}

// NewServer builds a Server and registers its routes.
func NewServer(tasks task.Store, items itemstore.Store, log telemetry.Logger) *Server {
	s := &Server{mux: http.NewServeMux(), tasks: tasks, items: items, log: log}
	s.mux.HandleFunc("/tasks/", s.handleTaskRoutes)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleTaskRoutes dispatches POST /tasks/{taskId}/cancel.
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/cancel") {
		http.NotFound(w, r)
		return
	}

	taskID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/cancel")
	if taskID == "" {
		http.Error(w, "task id is required", http.StatusBadRequest)
		return
	}

	conversationID := ident.ConversationID(r.URL.Query().Get("conversationId"))
	if conversationID == "" {
		http.Error(w, "conversationId query parameter is required", http.StatusBadRequest)
		return
	}

	result, err := CancelTaskAndUpdateComponent(r.Context(), s.tasks, s.items, conversationID, ident.TaskID(taskID))
	if err != nil {
		s.log.Error(r.Context(), "transport: cancel task failed", "task_id", taskID, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !result.Success() {
		w.WriteHeader(http.StatusNotFound)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":              result.Success(),
		"cancelled":            result.Cancelled,
		"updatedComponentIds":  result.UpdatedComponentIDs,
		"message":              cancelMessage(result),
	})
}

func cancelMessage(r CancelResult) string {
	if r.Success() {
		return "task cancelled"
	}
	return "no matching task or component found"
}
