package handler

import (
	"net/http"

	"github.com/Anzful/devtrain/internal/api/middleware"
	"github.com/Anzful/devtrain/internal/app/service"
	"github.com/Anzful/devtrain/internal/common"

	"github.com/go-chi/chi/v5"
)

type ProgressHandler struct {
	progressService *service.ProgressService
}

func NewProgressHandler(ps *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progressService: ps}
}

func (h *ProgressHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/me/progress", h.getMyProgress)
}

func (h *ProgressHandler) getMyProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	progress, err := h.progressService.GetUserProgress(r.Context(), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, progress)
}
