package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
	"github.com/sakif/platidea/internal/service"
)

// IdeaHandler serves the idea board.
//
// Reads are public. Create needs a session; edit and delete additionally
// need the caller to be the author, which IdeaService enforces.
type IdeaHandler struct {
	ideas  *service.IdeaService
	logger *slog.Logger
}

func NewIdeaHandler(ideas *service.IdeaService, logger *slog.Logger) *IdeaHandler {
	return &IdeaHandler{ideas: ideas, logger: logger}
}

type IdeaResponse struct {
	Idea *model.Idea `json:"idea"`
}

type IdeaListResponse struct {
	Ideas  []model.Idea `json:"ideas"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func ideaPath(id string) string {
	return "/ideas/" + url.PathEscape(id)
}

func decodeIdeaFields(w http.ResponseWriter, r *http.Request) (model.IdeaFields, error) {
	var in model.IdeaFields
	err := decodeBody(w, r, &in, func(form url.Values) {
		in.Title = form.Get("title")
		in.Description = form.Get("description")
		in.Category = form.Get("category")
	})
	return in, err
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}

// HandleList returns ideas ranked by votes.
//
// HTTP: GET /ideas?limit=20&offset=0&category=city
func (h *IdeaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	opts := repository.ListOptions{Limit: limit, Offset: offset, Category: r.URL.Query().Get("category")}
	ideas, err := h.ideas.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	if limit <= 0 {
		limit = service.DefaultListLimit
	}
	writeJSON(w, http.StatusOK, IdeaListResponse{Ideas: ideas, Limit: min(limit, service.MaxListLimit), Offset: offset})
}

// HandleGet returns one idea.
//
// HTTP: GET /ideas/{id}
func (h *IdeaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	idea, err := h.ideas.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IdeaResponse{Idea: idea})
}

// HandleCreate stores a new idea authored by the caller.
//
// HTTP: POST /ideas (also POST /ideas/create)
func (h *IdeaHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeIdeaFields(w, r)
	if err != nil {
		respondError(w, r, err, "/ideas")
		return
	}

	idea, err := h.ideas.Create(r.Context(), auth.PrincipalFromContext(r.Context()), in)
	if err != nil {
		respondError(w, r, err, "/ideas")
		return
	}

	w.Header().Set("Location", ideaPath(idea.ID))
	respond(w, r, http.StatusCreated, IdeaResponse{Idea: idea}, ideaPath(idea.ID), "Idea created")
}

// HandleUpdate edits an idea owned by the caller.
//
// HTTP: PUT /ideas/{id} (also POST /ideas/{id}/edit)
func (h *IdeaHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	in, err := decodeIdeaFields(w, r)
	if err != nil {
		respondError(w, r, err, ideaPath(id))
		return
	}

	idea, err := h.ideas.Update(r.Context(), auth.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		respondError(w, r, err, "/ideas")
		return
	}

	respond(w, r, http.StatusOK, IdeaResponse{Idea: idea}, ideaPath(idea.ID), "Idea updated")
}

// HandleDelete removes an idea owned by the caller.
//
// HTTP: DELETE /ideas/{id} (also POST /ideas/{id}/delete)
func (h *IdeaHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.ideas.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, "/ideas")
		return
	}

	respond(w, r, http.StatusOK, MessageResponse{Message: "idea deleted"}, "/ideas", "Idea deleted")
}
