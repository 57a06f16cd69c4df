package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sessionAudience はセッショントークンのaudクレーム。
const sessionAudience = "belanjaku-web"

var (
	// ErrNoSession はセッショントークンが提示されていない場合のエラー。
	ErrNoSession = errors.New("no session token")
	// ErrInvalidSession は署名やクレームが不正な場合のエラー。
	ErrInvalidSession = errors.New("invalid session token")
	// ErrSessionExpired は有効期限切れの場合のエラー。
	ErrSessionExpired = errors.New("session token expired")
)

// SessionClaims はセッショントークンに載せるクレーム。
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenConfig はセッショントークンの署名設定。
type TokenConfig struct {
	Secret string
	Issuer string
	MaxAge time.Duration
}

// TokenCodec はHS256でセッショントークンを発行・検証する。
// 検証は署名と有効期限のみで完結し、ストアを参照しない。
type TokenCodec struct {
	secret []byte
	issuer string
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenCodec はTokenCodecを生成する。
func NewTokenCodec(config TokenConfig) *TokenCodec {
	return &TokenCodec{
		secret: []byte(config.Secret),
		issuer: config.Issuer,
		maxAge: config.MaxAge,
		now:    time.Now,
	}
}

// MaxAge はトークンの有効期間を返す。
func (c *TokenCodec) MaxAge() time.Duration {
	return c.maxAge
}

// Issue は{email, role}を署名したトークンを発行する。
func (c *TokenCodec) Issue(email, role string) (string, *SessionClaims, error) {
	now := c.now()
	claims := &SessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    c.issuer,
			Subject:   email,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}

// Parse はトークンの署名・発行者・有効期限を検証し、クレームを返す。
func (c *TokenCodec) Parse(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrNoSession
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(sessionAudience),
		jwt.WithIssuer(c.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidSession)
	}
	return claims, nil
}
