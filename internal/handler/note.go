package handler

import (
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
	"github.com/dukerupert/galactic-archives/internal/websocket"
)

const (
	titleLengthMessage  = "Title must be between 1 and 200 characters"
	emptyContentMessage = "Content must not be empty"
)

type validationError string

func (e validationError) Error() string { return string(e) }

type NoteHandler struct {
	notes  store.Notes
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewNoteHandler(notes store.Notes, hub *websocket.Hub, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: notes, hub: hub, logger: logger}
}

func (h *NoteHandler) publish(ownerID, action, id string) {
	if h.hub != nil {
		h.hub.Publish(ownerID, websocket.NewMessage("note", action, id))
	}
}

type noteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// validateTitle checks the title's length in characters. Whitespace counts
// and is stored as sent.
func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n < 1 || n > model.MaxNoteTitleLength {
		return validationError(titleLengthMessage)
	}
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return validationError(emptyContentMessage)
	}
	return nil
}

// noteID returns the {id} path parameter, writing a 400 when it is not a
// well-formed identifier.
func noteID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !model.ValidID(id) {
		writeError(w, http.StatusBadRequest, "Invalid note ID format")
		return "", false
	}
	return id, true
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeError(w, err)
		return
	}
	if req.Title == nil {
		writeError(w, http.StatusBadRequest, titleLengthMessage)
		return
	}
	if req.Content == nil {
		writeError(w, http.StatusBadRequest, emptyContentMessage)
		return
	}

	if err := validateTitle(*req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateContent(*req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := auth.UserID(r.Context())
	note, err := h.notes.Create(r.Context(), ownerID, *req.Title, *req.Content)
	if err != nil {
		storeError(w, h.logger, "Failed to create note", err)
		return
	}

	h.publish(ownerID, "created", note.ID)
	writeJSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	notes, err := h.notes.List(r.Context(), auth.UserID(r.Context()), search)
	if err != nil {
		storeError(w, h.logger, "Failed to retrieve notes", err)
		return
	}
	if notes == nil {
		notes = []model.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}

	note, err := h.notes.Get(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		storeError(w, h.logger, "Failed to retrieve note", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "Note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeError(w, err)
		return
	}

	patch := model.NotePatch{Title: req.Title, Content: req.Content}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "At least one field must be provided for update")
		return
	}
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Content != nil {
		if err := validateContent(*req.Content); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ownerID := auth.UserID(r.Context())
	note, err := h.notes.Update(r.Context(), id, ownerID, patch)
	if err != nil {
		storeError(w, h.logger, "Failed to update note", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "Note not found")
		return
	}

	h.publish(ownerID, "updated", note.ID)
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}

	ownerID := auth.UserID(r.Context())
	deleted, err := h.notes.Delete(r.Context(), id, ownerID)
	if err != nil {
		storeError(w, h.logger, "Failed to delete note", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Note not found")
		return
	}

	h.publish(ownerID, "deleted", id)
	writeMessage(w, http.StatusOK, "Note deleted successfully")
}
