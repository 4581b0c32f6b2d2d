// Package auth signs the short-lived links that tie the web form to a chat user.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const formIssuer = "burdenmint"

var ErrInvalidFormToken = errors.New("invalid or expired form token")

// FormClaims identify the chat user a form submission belongs to.
type FormClaims struct {
	ChatUser string `json:"chat_user"`
	jwt.RegisteredClaims
}

type FormTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewFormTokens(secret string, ttl time.Duration) *FormTokens {
	return &FormTokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for chatUser valid for the configured TTL.
func (m *FormTokens) Issue(chatUser string) (string, error) {
	now := time.Now()
	claims := FormClaims{
		ChatUser: chatUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    formIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing form token: %w", err)
	}
	return signed, nil
}

// Validate returns the claims of a token issued by Issue.
func (m *FormTokens) Validate(tokenStr string) (*FormClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &FormClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(formIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormToken, err)
	}

	claims, ok := token.Claims.(*FormClaims)
	if !ok || !token.Valid || claims.ChatUser == "" {
		return nil, ErrInvalidFormToken
	}
	return claims, nil
}
