package transport

import (
	"encoding/json"
	"net/http"

	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/orchestrator"
)

// wireEvent is the JSON envelope written per SSE frame.
type wireEvent struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversationId"`
	ThreadID       string `json:"threadId,omitempty"`
	TaskID         string `json:"taskId,omitempty"`
	ItemID         string `json:"itemId,omitempty"`
	ComponentType  string `json:"componentType,omitempty"`
	Text           string `json:"text,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	Error          string `json:"error,omitempty"`
	Done           bool   `json:"done,omitempty"`
}

func toWireEvent(e events.Event) wireEvent {
	return wireEvent{
		Kind:           string(e.Kind),
		ConversationID: string(e.ConversationID),
		ThreadID:       string(e.ThreadID),
		TaskID:         string(e.TaskID),
		ItemID:         e.ItemID,
		ComponentType:  string(e.ComponentType),
		Text:           e.Text,
		Content:        e.Content,
		Error:          e.Error,
		Done:           e.Done,
	}
}

// TurnHandler streams a single orchestrator turn as Server-Sent Events.
type TurnHandler struct {
	orch *orchestrator.Orchestrator
}

// NewTurnHandler builds a TurnHandler over orch.
func NewTurnHandler(orch *orchestrator.Orchestrator) *TurnHandler {
	return &TurnHandler{orch: orch}
}

// ServeHTTP implements http.Handler for POST /turns.
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
		TargetAgent    string `json:"targetAgent"`
		Query          string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	in := orchestrator.UserInput{
		ConversationID: ident.ConversationID(req.ConversationID),
		UserID:         ident.UserID(req.UserID),
		TargetAgent:    ident.AgentName(req.TargetAgent),
		Query:          req.Query,
	}

	for ev := range h.orch.ProcessUserInput(r.Context(), in) {
		raw, err := json.Marshal(toWireEvent(ev))
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(raw)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
