// Package token выдаёт и проверяет подписанные токены отметки на мероприятии.
// Формат токена: "{userId}:{unixMillis}:{signatureBase64Url}".
//
// Подпись — HMAC-SHA256 от "{userId}:{unixMillis}". Ключ подписи выводится
// из секрета конфигурации через HKDF, сам секрет ключом MAC не служит.
// Срок жизни токена ограничен (по умолчанию 24 часа), чтобы скриншот
// или утёкший QR нельзя было переиспользовать бесконечно.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// DefaultTTL — окно валидности токена.
const DefaultTTL = 24 * time.Hour

// maxFutureSkew — насколько токен может быть «из будущего» из-за рассинхрона часов.
const maxFutureSkew = time.Minute

const hkdfInfo = "passport-checkin-token"

// Ошибки проверки. Для клиента все три неотличимы — различаем только в логах.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMalformed    = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	ErrExpired      = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Config — параметры кодека. Секрет передаётся явно при создании.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time // nil — time.Now
}

// Claims — то, что удалось достать из проверенного токена.
type Claims struct {
	UserID   int64
	IssuedAt time.Time
}

// Codec выдаёт и проверяет токены. Состояния нет, безопасен для горутин.
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewCodec создаёт кодек и выводит ключ подписи из секрета.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: пустой секрет")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, cfg.Secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("token: вывод ключа: %w", err)
	}

	return &Codec{key: key, ttl: ttl, now: now}, nil
}

// Issue выпускает токен для пользователя с текущим временем.
func (c *Codec) Issue(userID int64) string {
	payload := strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(c.now().UnixMilli(), 10)
	return payload + ":" + c.sign(payload)
}

// Verify проверяет структуру, подпись и возраст токена.
func (c *Codec) Verify(tok string) (Claims, error) {
	parts := strings.Split(strings.TrimSpace(tok), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformed
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return Claims{}, ErrMalformed
	}
	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || millis <= 0 {
		return Claims{}, ErrMalformed
	}

	// Strict: «лишние» биты в последнем символе тоже считаются подделкой
	got, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrMalformed
	}
	want := c.mac(parts[0] + ":" + parts[1])
	if !hmac.Equal(got, want) {
		return Claims{}, ErrBadSignature
	}

	issuedAt := time.UnixMilli(millis)
	now := c.now()
	if issuedAt.After(now.Add(maxFutureSkew)) {
		return Claims{}, ErrMalformed
	}
	if now.Sub(issuedAt) > c.ttl {
		return Claims{}, ErrExpired
	}

	return Claims{UserID: userID, IssuedAt: issuedAt}, nil
}

// TTL возвращает окно валидности.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

func (c *Codec) sign(payload string) string {
	return base64.RawURLEncoding.EncodeToString(c.mac(payload))
}

func (c *Codec) mac(payload string) []byte {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(payload))
	return h.Sum(nil)
}
