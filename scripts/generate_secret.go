//go:build ignore

// generate_secret.go — утилита для генерации TOKEN_SECRET.
// Запуск: go run scripts/generate_secret.go [user_id]
//
// Результат вставьте в .env как TOKEN_SECRET. Если передан user_id,
// дополнительно печатается токен отметки для ручной проверки /checkin.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"

	"serotonyl.ru/passport/internal/features/token"
)

func main() {
	// 48 случайных байт — после base64 получается 64 символа
	raw := make([]byte, 48)
	if _, err := rand.Read(raw); err != nil {
		fmt.Printf("Ошибка генерации секрета: %v\n", err)
		os.Exit(1)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	fmt.Println("Секрет (вставьте в .env как TOKEN_SECRET):")
	fmt.Println(secret)

	if len(os.Args) < 2 {
		return
	}

	userID, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil || userID <= 0 {
		fmt.Println("Использование: go run scripts/generate_secret.go [user_id]")
		os.Exit(1)
	}

	codec, err := token.NewCodec(token.Config{Secret: []byte(secret)})
	if err != nil {
		fmt.Printf("Ошибка создания кодека: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Токен для user_id=%d (действует %s):\n", userID, codec.TTL())
	fmt.Println(codec.Issue(userID))
}
