package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeanikt/uniconnect/internal/model"
)

const tokenIssuer = "uniconnect"

// Claims はセッショントークンのクレーム。sidでサーバー側のセッションを参照する。
type Claims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username"`
	Admin     bool   `json:"admin"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256で署名したセッショントークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue はセッションに対応するトークンを発行する。有効期限はセッションと同じ。
func (t *TokenIssuer) Issue(user *model.User, session *model.Session) (string, error) {
	claims := Claims{
		SessionID: session.ID,
		Username:  user.Username,
		Admin:     user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証してクレームを返す。
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ParseSessionID はトークンを検証し、参照しているセッションIDを返す。
func (t *TokenIssuer) ParseSessionID(tokenString string) (string, error) {
	claims, err := t.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.SessionID, nil
}
