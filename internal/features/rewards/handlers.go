// Package rewards — handlers.go: GET /rewards и POST /rewards/{id}/redeem.
package rewards

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/server"
)

// Handler обрабатывает запросы наград.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик наград.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes подключает маршруты. Все требуют пользователя от шлюза.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(server.RequireCaller)
		r.Get("/rewards", h.List)
		r.Post("/rewards/{id}/redeem", h.Redeem)
	})
}

type rewardDTO struct {
	ID         int64      `json:"id"`
	Type       Category   `json:"type"`
	Code       string     `json:"code"`
	Metadata   Metadata   `json:"metadata"`
	Status     Status     `json:"status"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RedeemedAt *time.Time `json:"redeemedAt,omitempty"`
}

func toDTO(r *Reward) rewardDTO {
	return rewardDTO{
		ID:         r.ID,
		Type:       r.Type,
		Code:       r.Code,
		Metadata:   r.Metadata,
		Status:     r.Status,
		ExpiresAt:  r.ExpiresAt,
		RedeemedAt: r.RedeemedAt,
	}
}

// List — GET /rewards.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := server.CallerFrom(r.Context())
	list, err := h.service.ListForUser(r.Context(), caller.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", caller.UserID).Error("Ошибка получения наград")
		server.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	out := make([]rewardDTO, 0, len(list))
	for _, rw := range list {
		out = append(out, toDTO(rw))
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"rewards": out})
}

// Redeem — POST /rewards/{id}/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	caller, _ := server.CallerFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		server.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid reward id")
		return
	}

	rw, err := h.service.Redeem(r.Context(), caller.UserID, id)
	switch {
	case errors.Is(err, common.ErrRewardNotFound):
		server.WriteError(w, http.StatusNotFound, "REWARD_NOT_FOUND", err.Error())
	case errors.Is(err, common.ErrRewardNotAvailable):
		server.WriteError(w, http.StatusConflict, "REWARD_NOT_AVAILABLE", err.Error())
	case err != nil:
		server.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	default:
		server.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "reward": toDTO(rw)})
	}
}
