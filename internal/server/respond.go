// Package server — HTTP-сервер сервиса: роутер, промежуточные обработчики,
// запись JSON-ответов.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// ErrorBody — тело ответа с ошибкой: {success:false, code, message}.
type ErrorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON пишет v как JSON с заданным статусом.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Ошибка записи ответа")
	}
}

// WriteError пишет ошибку со стабильным кодом.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Success: false, Code: code, Message: message})
}

// DecodeJSON читает тело запроса в v. Превышение лимита тела тоже
// возвращается ошибкой.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("лишние данные после JSON")
	}
	return nil
}
