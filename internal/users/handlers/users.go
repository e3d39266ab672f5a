package handlers

import (
	"net/http"

	"github.com/Ultrahd-dev/helpdesk/internal/httpx"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/gin-gonic/gin"
)

// UserHandler управление учетными записями
type UserHandler struct {
	userService *users.Service
}

// NewUserHandler создает handler управления пользователями
func NewUserHandler(userService *users.Service) *UserHandler {
	return &UserHandler{userService: userService}
}

// ListQuery параметры списка пользователей
type ListQuery struct {
	Search string `form:"search"`
	Role   string `form:"role" binding:"omitempty,oneof=ALL USER TECHNICIAN ADMIN"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// CreateUserRequest создание пользователя администратором
type CreateUserRequest struct {
	Email    string     `json:"email" binding:"required,email"`
	Name     string     `json:"name" binding:"required,min=1"`
	Password string     `json:"password" binding:"required,min=6"`
	Role     users.Role `json:"role" binding:"required,oneof=USER TECHNICIAN ADMIN"`
}

// UpdateUserRequest частичное обновление пользователя
type UpdateUserRequest struct {
	Email    *string     `json:"email" binding:"omitempty,email"`
	Name     *string     `json:"name" binding:"omitempty,min=1"`
	Password *string     `json:"password" binding:"omitempty,min=6"`
	Role     *users.Role `json:"role" binding:"omitempty,oneof=USER TECHNICIAN ADMIN"`
}

// List GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	var q ListQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Error(c, err)
		return
	}

	filter := users.ListFilter{Search: q.Search}
	if q.Role != "" && q.Role != "ALL" {
		filter.Role = users.Role(q.Role)
	}

	result, err := h.userService.ListUsers(c.Request.Context(), filter, pagination.New(q.Page, q.Limit))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Technicians GET /api/v1/users/technicians
func (h *UserHandler) Technicians(c *gin.Context) {
	techs, err := h.userService.ListTechnicians(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if techs == nil {
		techs = []users.Technician{}
	}

	c.JSON(http.StatusOK, gin.H{"technicians": techs})
}

// Create POST /api/v1/users
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), users.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Пользователь создан", "user": user})
}

// Update PUT /api/v1/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req UpdateUserRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), id, users.UpdateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Пользователь обновлен", "user": user})
}

// Delete DELETE /api/v1/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), id); err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Пользователь удален"})
}
