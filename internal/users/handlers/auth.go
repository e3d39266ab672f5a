// Package handlers предоставляет HTTP handlers для работы с пользователями
package handlers

import (
	"net/http"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/httpx"
	"github.com/Ultrahd-dev/helpdesk/internal/jwt"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/gin-gonic/gin"
)

// AuthHandler обрабатывает HTTP запросы, связанные с аутентификацией
type AuthHandler struct {
	userService *users.Service
	jwtManager  *jwt.Manager
}

// NewAuthHandler создает новый handler для аутентификации
func NewAuthHandler(userService *users.Service, jwtManager *jwt.Manager) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// RegisterRequest данные регистрации. Роль из тела запроса не принимается.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest данные для входа
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse ответ на успешный вход
type LoginResponse struct {
	Token string      `json:"token"`
	User  *users.User `json:"user"`
}

// Register обрабатывает регистрацию новых пользователей
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	user, err := h.userService.Register(c.Request.Context(), users.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Пользователь успешно зарегистрирован",
		"user":    user,
	})
}

// Login выдает токен по email и паролю
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email, user.Name, string(user.Role))
	if err != nil {
		httpx.Error(c, apperr.Internal("Ошибка генерации токена", err))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}

// Profile возвращает текущего пользователя
// GET /api/v1/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		httpx.Error(c, apperr.Unauthenticated("Требуется аутентификация"))
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), id.UserID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
