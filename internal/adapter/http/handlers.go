package http

import (
	"io"
	"net/http"

	"github.com/isa-group/harvey/internal/bus"
	"github.com/isa-group/harvey/internal/domain/conversation"
	"github.com/isa-group/harvey/internal/service"
)

// maxChatBody bounds the /chat request body (questions plus inline YAML).
const maxChatBody = 4 << 20

// Handlers aggregates the HTTP handler dependencies.
type Handlers struct {
	Chat  *service.ChatService
	Blobs *service.BlobService
	Bus   *bus.Bus
}

// HandleChat answers a pricing question. The response carries the session
// id in a cookie so the client can scope its event stream.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[conversation.ChatRequest](w, r, maxChatBody)
	if !ok {
		return
	}

	sessID, resp, err := h.Chat.Handle(r.Context(), sessionID(r), req)
	if err != nil {
		writeDomainError(w, err, "chat failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "harvey_session",
		Value:    sessID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, resp)
}

// HandleCancel aborts the running turn of a session.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := h.Chat.Cancel(id); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpload stores an uploaded YAML artifact.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	id, err := h.Blobs.Upload(r.Context(), header.Header.Get("Content-Type"), data)
	if err != nil {
		writeDomainError(w, err, "upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"filename":     header.Filename,
		"relative_url": "/static/" + id,
	})
}

// HandleDeletePricing removes an uploaded artifact.
func (h *Handlers) HandleDeletePricing(w http.ResponseWriter, r *http.Request) {
	if err := h.Blobs.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "pricing not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatic serves a stored artifact for external editor links.
func (h *Handlers) HandleStatic(w http.ResponseWriter, r *http.Request) {
	data, err := h.Blobs.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "pricing not found")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
