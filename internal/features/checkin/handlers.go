// Package checkin — handlers.go обрабатывает HTTP-запросы:
// GET /profile и POST /checkin.
package checkin

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/passport"
	"serotonyl.ru/passport/internal/features/tiers"
	"serotonyl.ru/passport/internal/server"
)

// Handler обрабатывает запросы отметки и профиля.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик отметок.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes подключает маршруты.
func (h *Handler) Routes(r chi.Router) {
	r.With(server.RequireCaller).Get("/profile", h.GetProfile)
	r.Post("/checkin", h.PostCheckIn)
}

type checkinRequest struct {
	QRData     string `json:"qrData"`
	AccessCode string `json:"accessCode"`
	Method     string `json:"method,omitempty"`
}

type stampDTO struct {
	ID              int64     `json:"id"`
	EventID         int64     `json:"eventId"`
	CountryCode     string    `json:"countryCode"`
	CarnivalCircuit string    `json:"carnivalCircuit,omitempty"`
	PointsEarned    int64     `json:"pointsEarned"`
	Source          string    `json:"source"`
	EarnedAt        time.Time `json:"earnedAt"`
}

type userDTO struct {
	Handle      string     `json:"handle"`
	TotalPoints int64      `json:"totalPoints"`
	CurrentTier tiers.Tier `json:"currentTier"`
}

type eventDTO struct {
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Location string    `json:"location"`
}

type rewardDTO struct {
	Code         string `json:"code"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	DiscountCode string `json:"discountCode"`
}

type checkinResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Stamp         *stampDTO   `json:"stamp"`
	User          userDTO     `json:"user"`
	Event         eventDTO    `json:"event"`
	PointsAwarded int64       `json:"pointsAwarded"`
	TierUpdated   bool        `json:"tierUpdated"`
	PreviousTier  tiers.Tier  `json:"previousTier,omitempty"`
	NewTier       tiers.Tier  `json:"newTier,omitempty"`
	Rewards       []rewardDTO `json:"rewards,omitempty"`
	Achievements  []string    `json:"achievements,omitempty"`
}

type alreadyStampedResponse struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	AlreadyStamped bool      `json:"alreadyStamped"`
	Stamp          *stampDTO `json:"stamp"`
}

type profileDTO struct {
	Handle         string     `json:"handle"`
	TotalPoints    int64      `json:"totalPoints"`
	CurrentTier    tiers.Tier `json:"currentTier"`
	TotalEvents    int        `json:"totalEvents"`
	TotalCountries int        `json:"totalCountries"`
}

type profileResponse struct {
	Profile profileDTO `json:"profile"`
	Token   string     `json:"token"`
}

func toStampDTO(s *passport.Stamp) *stampDTO {
	if s == nil {
		return nil
	}
	return &stampDTO{
		ID:              s.ID,
		EventID:         s.EventID,
		CountryCode:     s.CountryCode,
		CarnivalCircuit: s.CarnivalCircuit,
		PointsEarned:    s.PointsEarned,
		Source:          s.Source,
		EarnedAt:        s.EarnedAt,
	}
}

// GetProfile — GET /profile: профиль и свежий токен.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := server.CallerFrom(r.Context())

	view, err := h.service.Profile(r.Context(), caller.UserID, caller.Handle)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			server.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		log.WithError(err).WithField("user_id", caller.UserID).Error("Ошибка получения профиля")
		server.WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	p := view.Profile
	server.WriteJSON(w, http.StatusOK, profileResponse{
		Profile: profileDTO{
			Handle:         p.Handle,
			TotalPoints:    p.TotalPoints,
			CurrentTier:    p.CurrentTier,
			TotalEvents:    p.TotalEvents,
			TotalCountries: p.TotalCountries,
		},
		Token: view.Token,
	})
}

// PostCheckIn — POST /checkin.
func (h *Handler) PostCheckIn(w http.ResponseWriter, r *http.Request) {
	var body checkinRequest
	if err := server.DecodeJSON(r, &body); err != nil {
		server.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	req := Request{QRData: body.QRData, AccessCode: body.AccessCode, Method: body.Method}
	if caller, ok := server.CallerFrom(r.Context()); ok {
		req.CallerID = caller.UserID
		req.Handle = caller.Handle
	}

	res, err := h.service.CheckIn(r.Context(), req)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			server.WriteError(w, rejectionStatus(rej.Code), rej.Code, rej.Message)
			return
		}
		log.WithError(err).WithField("user_id", res.UserID).Error("Ошибка отметки")
		server.WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	if res.State == StateAlreadyStamped {
		server.WriteJSON(w, http.StatusConflict, alreadyStampedResponse{
			Success:        false,
			Message:        "already checked in",
			AlreadyStamped: true,
			Stamp:          toStampDTO(res.Stamp),
		})
		return
	}

	resp := checkinResponse{
		Success:       true,
		Message:       "checked in",
		Stamp:         toStampDTO(res.Stamp),
		User:          userDTO{Handle: res.Profile.Handle, TotalPoints: res.Profile.TotalPoints, CurrentTier: res.Profile.CurrentTier},
		Event:         eventDTO{Title: res.Event.Title, Date: res.Event.Date, Location: res.Event.Location},
		PointsAwarded: res.Credits,
		TierUpdated:   res.TierUpdated,
	}
	if res.TierUpdated {
		resp.PreviousTier = res.PreviousTier
		resp.NewTier = res.NewTier
	}
	for _, rw := range res.Rewards {
		resp.Rewards = append(resp.Rewards, rewardDTO{
			Code:         rw.Code,
			Category:     string(rw.Type),
			Description:  rw.Metadata.Description,
			DiscountCode: rw.Metadata.DiscountCode,
		})
	}
	for _, a := range res.Achievements {
		resp.Achievements = append(resp.Achievements, string(a.Code))
	}
	server.WriteJSON(w, http.StatusOK, resp)
}

// rejectionStatus — HTTP-статус для кода отказа.
func rejectionStatus(code string) int {
	if code == CodeInvalidAccessCode {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
