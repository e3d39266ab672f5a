package reports

import (
	"net/http"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/httpx"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler HTTP обработчики заявок и статистики
type Handler struct {
	service *Service
}

// NewHandler создает обработчики заявок
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListQuery фильтры списка; ALL равнозначно отсутствию фильтра
type ListQuery struct {
	Status     string `form:"status" binding:"omitempty,oneof=ALL OPEN IN_PROGRESS RESOLVED CLOSED"`
	Type       string `form:"type" binding:"omitempty,oneof=ALL SYSTEM_FAILURE HARDWARE_ISSUE NETWORK_ISSUE PRINTER_PROBLEMS COMPUTER_SLOW EMAIL_ISSUES FILE_ACCESS HARDWARE_MALFUNCTION INTERNET_CONNECTION PASSWORD_RESET SOFTWARE_CRASH SYSTEM_UPDATE VIRUS_MALWARE"`
	Priority   string `form:"priority" binding:"omitempty,oneof=ALL LOW MEDIUM HIGH CRITICAL"`
	AssignedTo string `form:"assignedTo" binding:"omitempty,uuid"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
}

// CreateRequest тело создания заявки. reportedById из тела не читается.
type CreateRequest struct {
	Title       string       `json:"title" binding:"required,min=5"`
	Description string       `json:"description" binding:"required,min=10"`
	Type        IncidentType `json:"type" binding:"required,oneof=SYSTEM_FAILURE HARDWARE_ISSUE NETWORK_ISSUE PRINTER_PROBLEMS COMPUTER_SLOW EMAIL_ISSUES FILE_ACCESS HARDWARE_MALFUNCTION INTERNET_CONNECTION PASSWORD_RESET SOFTWARE_CRASH SYSTEM_UPDATE VIRUS_MALWARE"`
	Priority    *Priority    `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Location    *string      `json:"location"`
	Equipment   *string      `json:"equipment"`
	ImageURL    *string      `json:"imageUrl" binding:"omitempty,url"`
}

// UpdateRequest частичное изменение заявки
type UpdateRequest struct {
	Title        *string       `json:"title" binding:"omitempty,min=5"`
	Description  *string       `json:"description" binding:"omitempty,min=10"`
	Type         *IncidentType `json:"type" binding:"omitempty,oneof=SYSTEM_FAILURE HARDWARE_ISSUE NETWORK_ISSUE PRINTER_PROBLEMS COMPUTER_SLOW EMAIL_ISSUES FILE_ACCESS HARDWARE_MALFUNCTION INTERNET_CONNECTION PASSWORD_RESET SOFTWARE_CRASH SYSTEM_UPDATE VIRUS_MALWARE"`
	Priority     *Priority     `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Status       *Status       `json:"status" binding:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
	Location     *string       `json:"location"`
	Equipment    *string       `json:"equipment"`
	ImageURL     *string       `json:"imageUrl" binding:"omitempty,url"`
	AssignedToID *uuid.UUID    `json:"assignedToId"`
}

// AssignRequest тело назначения исполнителя
type AssignRequest struct {
	AssignedToID *uuid.UUID `json:"assignedToId" binding:"required"`
}

// CommentRequest тело комментария
type CommentRequest struct {
	Content string `json:"content" binding:"required,min=1"`
}

func actor(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		httpx.Error(c, apperr.Unauthenticated("Требуется аутентификация"))
	}
	return id, ok
}

func (q ListQuery) filter() Filter {
	var f Filter
	if q.Status != "" && q.Status != "ALL" {
		s := Status(q.Status)
		f.Status = &s
	}
	if q.Type != "" && q.Type != "ALL" {
		t := IncidentType(q.Type)
		f.Type = &t
	}
	if q.Priority != "" && q.Priority != "ALL" {
		p := Priority(q.Priority)
		f.Priority = &p
	}
	if q.AssignedTo != "" {
		if id, err := uuid.Parse(q.AssignedTo); err == nil {
			f.AssignedTo = &id
		}
	}
	return f
}

// List GET /api/v1/reports
func (h *Handler) List(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}

	var q ListQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), id, q.filter(), pagination.New(q.Page, q.Limit))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Get GET /api/v1/reports/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	reportID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	details, err := h.service.Get(c.Request.Context(), id, reportID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": details})
}

// Create POST /api/v1/reports
func (h *Handler) Create(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	report, err := h.service.Create(c.Request.Context(), id, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		Location:    req.Location,
		Equipment:   req.Equipment,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Заявка создана", "report": report})
}

// Update PUT /api/v1/reports/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	reportID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req UpdateRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		// без права на изменение ответ 403/404, а не ошибки тела
		if denied := h.service.CheckEdit(c.Request.Context(), id, reportID); denied != nil {
			err = denied
		}
		httpx.Error(c, err)
		return
	}

	report, err := h.service.Update(c.Request.Context(), id, reportID, UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		Priority:     req.Priority,
		Status:       req.Status,
		Location:     req.Location,
		Equipment:    req.Equipment,
		ImageURL:     req.ImageURL,
		AssignedToID: req.AssignedToID,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Заявка обновлена", "report": report})
}

// Delete DELETE /api/v1/reports/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	reportID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, reportID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Заявка удалена"})
}

// Assign PUT /api/v1/reports/:id/assign
func (h *Handler) Assign(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	reportID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req AssignRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	report, err := h.service.Assign(c.Request.Context(), id, reportID, *req.AssignedToID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Исполнитель назначен", "report": report})
}

// ListComments GET /api/v1/reports/:id/comments
func (h *Handler) ListComments(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	reportID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	comments, err := h.service.ListComments(c.Request.Context(), id, reportID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// AddComment POST /api/v1/reports/:id/comments
func (h *Handler) AddComment(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	reportID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req CommentRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		if denied := h.service.CheckComment(c.Request.Context(), id, reportID); denied != nil {
			err = denied
		}
		httpx.Error(c, err)
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), id, reportID, req.Content)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Комментарий добавлен", "comment": comment})
}

// Stats GET /api/v1/dashboard/stats
func (h *Handler) Stats(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
