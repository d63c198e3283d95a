package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/service"
)

// VoteHandler serves toggle-votes.
//
//	POST /votes/{id} → 200 {"votes": 3, "voting": true} | 303 /ideas
//	GET  /votes/{id} → 200 {"votes": 3, "voting": true}
//
// After a 503 on POST the toggle may or may not have been applied; clients
// read GET /votes/{id} before deciding to toggle again.
type VoteHandler struct {
	votes  *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(votes *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

func (h *VoteHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	res, err := h.votes.Toggle(r.Context(), chi.URLParam(r, "id"), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err, "/ideas")
		return
	}

	flash := "Vote removed"
	if res.Voting {
		flash = "Vote recorded"
	}
	respond(w, r, http.StatusOK, res, "/ideas", flash)
}

func (h *VoteHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.votes.Status(r.Context(), chi.URLParam(r, "id"), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
