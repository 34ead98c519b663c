package devserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrInvalidToken is returned when a bearer token does not verify.
var ErrInvalidToken = errors.New("invalid token")

// tokenSigner issues and verifies HS256 access tokens.
type tokenSigner struct {
	secret []byte
}

func newTokenSigner(secret string) *tokenSigner {
	return &tokenSigner{secret: []byte(secret)}
}

// accessClaims are what the server reads back from a token.
type accessClaims struct {
	Username   string
	Role       string
	Generation int
}

func (s *tokenSigner) sign(u *user, generation int, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  u.Username,
		"uid":  u.ID,
		"role": u.Role,
		"gen":  generation,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"jti":  uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

func (s *tokenSigner) verify(raw string, now time.Time) (*accessClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	sub, _ := claims.GetSubject()
	role, _ := claims["role"].(string)
	gen, _ := claims["gen"].(float64)
	return &accessClaims{Username: sub, Role: role, Generation: int(gen)}, nil
}
