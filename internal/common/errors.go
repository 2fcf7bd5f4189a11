// Package common — errors.go определяет ошибки, которые используются во всех модулях сервиса.
// Эти ошибки позволяют HTTP-слою различать типы проблем
// и отдавать клиенту стабильный код и понятное сообщение.
package common

import "errors"

// Ошибки валидации запроса
var (
	// ErrInvalidRequest — тело запроса не разобрано или не хватает полей
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidMethod — неизвестный способ отметки
	ErrInvalidMethod = errors.New("invalid check-in method")
)

// Ошибки каталога мероприятий
var (
	// ErrEventNotFound — мероприятие с таким кодом доступа не найдено
	ErrEventNotFound = errors.New("invalid access code")
	// ErrCheckinDisabled — у мероприятия выключена отметка
	ErrCheckinDisabled = errors.New("check-in not enabled")
)

// Ошибки паспорта
var (
	// ErrProfileNotFound — профиль паспорта ещё не создан
	ErrProfileNotFound = errors.New("passport profile not found")
	// ErrUserNotFound — пользователь не передан шлюзом
	ErrUserNotFound = errors.New("user not found")
)

// Ошибки наград
var (
	// ErrRewardNotFound — награда не найдена или принадлежит другому пользователю
	ErrRewardNotFound = errors.New("reward not found")
	// ErrRewardNotAvailable — награда уже погашена или истекла
	ErrRewardNotAvailable = errors.New("reward is not available")
)
