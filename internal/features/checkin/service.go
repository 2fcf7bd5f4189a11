// Package checkin — отметка участника на мероприятии.
// service.go проводит отметку через состояния:
//
//	TOKEN_PENDING → TOKEN_VERIFIED → EVENT_RESOLVED → AWARDED | ALREADY_STAMPED | REJECTED
//
// AWARDED, ALREADY_STAMPED и REJECTED — конечные состояния.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/features/achievements"
	"serotonyl.ru/passport/internal/features/events"
	"serotonyl.ru/passport/internal/features/passport"
	"serotonyl.ru/passport/internal/features/rewards"
	"serotonyl.ru/passport/internal/features/tiers"
	"serotonyl.ru/passport/internal/features/token"
)

// State — состояние отметки.
type State string

const (
	StateTokenPending   State = "TOKEN_PENDING"
	StateTokenVerified  State = "TOKEN_VERIFIED"
	StateEventResolved  State = "EVENT_RESOLVED"
	StateAwarded        State = "AWARDED"
	StateAlreadyStamped State = "ALREADY_STAMPED"
	StateRejected       State = "REJECTED"
)

// Коды отказов. Стабильны: клиент на них завязывается.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeInvalidAccessCode = "INVALID_ACCESS_CODE"
	CodeCheckinDisabled   = "CHECKIN_NOT_ENABLED"
	CodeInvalidMethod     = "INVALID_METHOD"
	CodeInternal          = "INTERNAL_ERROR"
)

// Rejection — отказ с кодом для клиента. Err — причина для логов.
type Rejection struct {
	Code    string
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func reject(code, message string, err error) *Rejection {
	return &Rejection{Code: code, Message: message, Err: err}
}

// EventCatalog — поиск мероприятия по коду доступа.
type EventCatalog interface {
	GetByAccessCode(ctx context.Context, code string) (*events.Event, error)
}

// Awarder — атомарное начисление (passport.Coordinator).
type Awarder interface {
	Award(ctx context.Context, req passport.AwardRequest) (*passport.AwardOutcome, error)
}

// Reconciler — шаги после начисления (rewards.Reconciler).
type Reconciler interface {
	Reconcile(ctx context.Context, in rewards.ReconcileInput) *rewards.ReconcileResult
}

// Profiles — ленивое создание профиля.
type Profiles interface {
	EnsureProfile(ctx context.Context, userID int64, handle string) (*passport.Profile, error)
}

// Tokens — выдача и проверка токенов (token.Codec).
type Tokens interface {
	Issue(userID int64) string
	Verify(tok string) (token.Claims, error)
}

// Request — запрос на отметку.
type Request struct {
	QRData     string
	AccessCode string
	Method     string
	// CallerID — пользователь из шлюза; 0, если неизвестен.
	// Если известен, токен должен принадлежать ему.
	CallerID int64
	Handle   string
}

// Result — итог отметки.
type Result struct {
	State        State
	UserID       int64
	Event        *events.Event
	CheckIn      *passport.CheckIn
	Stamp        *passport.Stamp
	Profile      *passport.Profile
	Credits      int64
	TierUpdated  bool
	PreviousTier tiers.Tier
	NewTier      tiers.Tier
	Rewards      []*rewards.Reward
	Achievements []achievements.Unlock
}

// ProfileView — профиль и свежий токен для QR.
type ProfileView struct {
	Profile *passport.Profile
	Token   string
}

// Service проводит отметку.
type Service struct {
	tokens     Tokens
	catalog    EventCatalog
	awarder    Awarder
	reconciler Reconciler
	profiles   Profiles
}

// NewService создаёт сервис отметок.
func NewService(tokens Tokens, catalog EventCatalog, awarder Awarder, reconciler Reconciler, profiles Profiles) *Service {
	return &Service{
		tokens:     tokens,
		catalog:    catalog,
		awarder:    awarder,
		reconciler: reconciler,
		profiles:   profiles,
	}
}

// Profile возвращает профиль (создаёт при первом обращении) и новый токен.
func (s *Service) Profile(ctx context.Context, userID int64, handle string) (*ProfileView, error) {
	if userID <= 0 {
		return nil, common.ErrUserNotFound
	}
	p, err := s.profiles.EnsureProfile(ctx, userID, handle)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return &ProfileView{Profile: p, Token: s.tokens.Issue(userID)}, nil
}

// CheckIn выполняет отметку. Result возвращается всегда, State — конечное состояние.
// REJECTED сопровождается *Rejection; ALREADY_STAMPED — не ошибка.
// Прочие ошибки — сбой хранилища.
//
// Параметры:
//   - ctx: контекст
//   - req: данные QR, код доступа, способ отметки и вызывающий из шлюза
//
// Возвращает:
//   - *Result: конечное состояние, штамп, профиль, награды и достижения
//   - error: *Rejection при отказе или ошибка хранилища (INTERNAL_ERROR)
func (s *Service) CheckIn(ctx context.Context, req Request) (*Result, error) {
	res := &Result{State: StateTokenPending}
	logger := log.WithField("component", "checkin")

	done := func(err error) (*Result, error) {
		var rej *Rejection
		if errors.As(err, &rej) {
			res.State = StateRejected
			logger.WithError(rej.Err).WithField("code", rej.Code).Info("Отметка отклонена")
		}
		return res, err
	}

	// Валидация без обращения к хранилищу
	qr := strings.TrimSpace(req.QRData)
	code := strings.TrimSpace(req.AccessCode)
	if qr == "" || code == "" {
		return done(reject(CodeInvalidRequest, "qrData and accessCode are required", common.ErrInvalidRequest))
	}
	method, err := passport.ParseMethod(req.Method)
	if err != nil {
		return done(reject(CodeInvalidMethod, "invalid check-in method", err))
	}

	// TOKEN_PENDING → TOKEN_VERIFIED
	claims, err := s.tokens.Verify(qr)
	if err != nil {
		return done(reject(CodeInvalidToken, token.ErrInvalidToken.Error(), err))
	}
	if req.CallerID != 0 && req.CallerID != claims.UserID {
		return done(reject(CodeInvalidToken, token.ErrInvalidToken.Error(),
			fmt.Errorf("токен user_id=%d предъявлен user_id=%d", claims.UserID, req.CallerID)))
	}
	res.State = StateTokenVerified
	res.UserID = claims.UserID
	logger = logger.WithField("user_id", claims.UserID)

	// TOKEN_VERIFIED → EVENT_RESOLVED
	event, err := s.catalog.GetByAccessCode(ctx, code)
	if errors.Is(err, common.ErrEventNotFound) {
		return done(reject(CodeInvalidAccessCode, common.ErrEventNotFound.Error(), err))
	}
	if err != nil {
		return done(fmt.Errorf("ошибка поиска мероприятия: %w", err))
	}
	if !event.CheckinEnabled {
		return done(reject(CodeCheckinDisabled, common.ErrCheckinDisabled.Error(), common.ErrCheckinDisabled))
	}
	res.State = StateEventResolved
	res.Event = event
	logger = logger.WithField("event_id", event.ID)

	// EVENT_RESOLVED → AWARDED | ALREADY_STAMPED
	handle := req.Handle
	if req.CallerID == 0 {
		handle = ""
	}
	outcome, err := s.awarder.Award(ctx, passport.AwardRequest{
		UserID: claims.UserID,
		Handle: handle,
		Event:  *event,
		Method: method,
	})
	var dup *passport.AlreadyCheckedInError
	if errors.As(err, &dup) {
		res.State = StateAlreadyStamped
		res.CheckIn = dup.CheckIn
		res.Stamp = dup.Stamp
		logger.Info("Повторная отметка")
		return res, nil
	}
	if err != nil {
		return done(err)
	}

	res.State = StateAwarded
	res.CheckIn = outcome.CheckIn
	res.Stamp = outcome.Stamp
	res.Profile = outcome.Profile
	res.Credits = outcome.Credits
	res.PreviousTier = outcome.PreviousTier
	res.NewTier = outcome.Profile.CurrentTier

	// Шаги после начисления: ошибки уже залогированы, отметку не отменяют
	if s.reconciler != nil {
		rec := s.reconciler.Reconcile(ctx, rewards.ReconcileInput{
			UserID:       claims.UserID,
			PreviousTier: outcome.PreviousTier,
			Profile:      outcome.Profile,
		})
		if rec.Profile != nil {
			res.Profile = rec.Profile
		}
		res.TierUpdated = rec.TierUpdated
		if rec.NewTier != "" {
			res.NewTier = rec.NewTier
		}
		res.Rewards = rec.Rewards
		res.Achievements = rec.Achievements
	}

	logger.WithFields(log.Fields{
		"state":   res.State,
		"credits": res.Credits,
	}).Info("Отметка завершена")
	return res, nil
}
