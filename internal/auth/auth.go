// Package auth определяет текущего пользователя запроса по JWT.
// Вход, выход и пароли обслуживает внешний модуль пользователей.
package auth

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	CookieName      = "token"
	DefaultLoginURL = "/auth/login/"
	actorKey        = "actor"
)

var ErrInvalidToken = errors.New("invalid token")

type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue выпускает токен для пользователя.
func (t *Tokens) Issue(userID int64) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse проверяет подпись и срок действия и возвращает id пользователя.
func (t *Tokens) Parse(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.Wrap(ErrInvalidToken, "empty token")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return 0, errors.Wrap(ErrInvalidToken, err.Error())
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrap(ErrInvalidToken, "bad subject")
	}
	return id, nil
}

type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Middleware определяет пользователя по cookie или заголовку Authorization.
// Анонимные запросы пропускаются дальше без пользователя.
func Middleware(tokens *Tokens, users UserLookup, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFrom(c)
		if raw == "" {
			c.Next()
			return
		}
		id, err := tokens.Parse(raw)
		if err != nil {
			log.WithError(err).Debug("Недействительный токен")
			c.Next()
			return
		}
		user, err := users.GetUser(c.Request.Context(), id)
		if err != nil {
			log.WithError(err).WithField("user_id", id).Debug("Пользователь токена не найден")
			c.Next()
			return
		}
		c.Set(actorKey, user)
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie
	}
	return ""
}

// Actor возвращает текущего пользователя или nil для анонима.
func Actor(c *gin.Context) *models.User {
	if v, ok := c.Get(actorKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// LoginURL строит адрес входа с возвратом на next.
func LoginURL(loginURL, next string) string {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	return loginURL + "?next=" + url.QueryEscape(next)
}
