package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Anzful/devtrain/internal/api/middleware"
	"github.com/Anzful/devtrain/internal/app/service"
	"github.com/Anzful/devtrain/internal/common"

	"github.com/go-chi/chi/v5"
)

type ChallengeHandler struct {
	challengeService *service.ChallengeService
}

func NewChallengeHandler(cs *service.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: cs}
}

func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listChallenges)
	r.Get("/{challengeID}", h.getChallenge)
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Post("/", h.createChallenge)
	})
}

func (h *ChallengeHandler) createChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req service.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	challenge, err := h.challengeService.CreateChallenge(r.Context(), userID, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, challenge)
}

func (h *ChallengeHandler) getChallenge(w http.ResponseWriter, r *http.Request) {
	role, _ := middleware.GetUserRoleFromContext(r.Context())
	challenge, err := h.challengeService.GetChallenge(r.Context(), chi.URLParam(r, "challengeID"), role)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, challenge)
}

func (h *ChallengeHandler) listChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.challengeService.ListChallenges(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, challenges)
}
