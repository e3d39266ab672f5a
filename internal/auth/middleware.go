// Package auth связывает JWT сессию с ролью пользователя и набором прав
package auth

import (
	"context"
	"strings"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/httpx"
	"github.com/Ultrahd-dev/helpdesk/internal/jwt"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const ginIdentityKey = "identity"

// UserLookup источник актуальных данных пользователя
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Middleware предоставляет middleware функции для аутентификации
type Middleware struct {
	jwtManager *jwt.Manager
	users      UserLookup
	log        *logrus.Entry
}

// NewMiddleware создает новый middleware для аутентификации
func NewMiddleware(jwtManager *jwt.Manager, lookup UserLookup, log *logrus.Entry) *Middleware {
	return &Middleware{
		jwtManager: jwtManager,
		users:      lookup,
		log:        log,
	}
}

// Authenticate проверяет JWT токен из заголовка Authorization,
// перечитывает пользователя и кладет Identity в контекст запроса
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httpx.Error(c, apperr.Unauthenticated("Требуется аутентификация"))
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			httpx.Error(c, apperr.Unauthenticated("Неверный формат токена: ожидается Bearer"))
			return
		}

		claims, err := m.jwtManager.ParseToken(tokenString)
		if err != nil {
			m.log.WithError(err).Debug("Отклонен токен")
			httpx.Error(c, apperr.Unauthenticated("Недействительный токен"))
			return
		}

		// Удаленный пользователь теряет доступ, новая роль применяется сразу
		user, err := m.users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				httpx.Error(c, apperr.Unauthenticated("Пользователь не найден"))
				return
			}
			httpx.Error(c, err)
			return
		}

		SetIdentity(c, NewIdentity(user))
		c.Next()
	}
}

// Require пропускает запрос только при наличии всех прав
func (m *Middleware) Require(caps Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			httpx.Error(c, apperr.Unauthenticated("Требуется аутентификация"))
			return
		}
		if !id.Can(caps) {
			httpx.Error(c, apperr.Forbidden("Доступ запрещен: недостаточно прав"))
			return
		}
		c.Next()
	}
}

// SetIdentity привязывает Identity к запросу
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(ginIdentityKey, id)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
}

// IdentityFrom извлекает Identity, установленную Authenticate
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ginIdentityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
