package web

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aura.town/session"
	"aura.town/store"
)

// Handler serves a small local status and history UI for the running
// assistant.
type Handler struct {
	ctrl   *session.Controller
	store  store.Store
	logger *log.Logger
}

func NewHandler(ctrl *session.Controller, st store.Store, logger *log.Logger) *Handler {
	return &Handler{ctrl: ctrl, store: st, logger: logger}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", h.handleIndex)
	r.Get("/status", h.handleStatus)
	r.Get("/conversations", h.handleConversations)
	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := struct {
		State     session.State `json:"state"`
		Speaking  bool          `json:"speaking"`
		Error     string        `json:"error,omitempty"`
		SessionID string        `json:"session_id,omitempty"`
		StartedAt string        `json:"started_at,omitempty"`
	}{
		State:    h.ctrl.State(),
		Speaking: h.ctrl.Speaking(),
		Error:    h.ctrl.ErrorMessage(),
	}
	if id, startedAt, ok := h.ctrl.CurrentSession(); ok {
		status.SessionID = id
		status.StartedAt = startedAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("failed to encode status", "error", err)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Assistant}}</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-900 text-gray-200">
    <div class="container mx-auto px-4 py-8">
        <h1 class="text-3xl font-bold mb-2">{{.Assistant}}</h1>
        <p class="mb-6 text-gray-400">state: {{.State}}</p>
        <a class="text-orange-400 underline" href="/conversations">Conversation history</a>
    </div>
</body>
</html>
`))

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	assistant := "Aura"
	if profile, err := h.store.Profile(r.Context()); err == nil {
		assistant = profile.AssistantName
	}

	data := struct {
		Assistant string
		State     session.State
	}{Assistant: assistant, State: h.ctrl.State()}

	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to render index", "error", err)
	}
}

var conversationsTemplate = template.Must(template.New("conversations").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Conversation History</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-900 text-gray-200">
    <div class="container mx-auto px-4 py-8">
        <h1 class="text-3xl font-bold mb-6">Conversation History</h1>
        {{if not .}}<p class="text-gray-400">No conversations yet.</p>{{end}}
        {{range .}}
        <div class="bg-gray-800 rounded-lg p-4 mb-4">
            <p class="text-sm text-gray-500 mb-2">{{.Timestamp.Format "Mon, Jan 2 15:04"}}</p>
            <p class="mb-1"><span class="text-orange-400">you:</span> {{.User}}</p>
            <p><span class="text-green-400">assistant:</span> {{.Assistant}}</p>
        </div>
        {{end}}
    </div>
</body>
</html>
`))

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.History(r.Context())
	if err != nil {
		h.logger.Error("failed to get history", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := conversationsTemplate.Execute(w, history); err != nil {
		h.logger.Error("failed to render conversations", "error", err)
	}
}
