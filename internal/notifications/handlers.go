package notifications

import (
	"context"
	"net/http"

	"github.com/Ultrahd-dev/helpdesk/internal/httpx"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeliveryReader чтение журнала отправок
type DeliveryReader interface {
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]Delivery, error)
}

// Handler ручная отправка уведомлений и просмотр журнала
type Handler struct {
	dispatcher *Dispatcher
	deliveries DeliveryReader
}

// NewHandler создает обработчики уведомлений
func NewHandler(dispatcher *Dispatcher, deliveries DeliveryReader) *Handler {
	return &Handler{dispatcher: dispatcher, deliveries: deliveries}
}

// SendRequest запрос ручной отправки
type SendRequest struct {
	Type     EventKind      `json:"type" binding:"required,oneof=new_report assigned status_changed"`
	ReportID *uuid.UUID     `json:"reportId" binding:"required"`
	Status   reports.Status `json:"status" binding:"required_if=Type status_changed,omitempty,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
}

// Send отправляет письма сразу, минуя очередь
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}

	res, err := h.dispatcher.Dispatch(c.Request.Context(), Event{
		Kind:     req.Type,
		ReportID: *req.ReportID,
		Status:   req.Status,
	})
	if res == nil {
		httpx.Error(c, err)
		return
	}

	message := "Уведомление отправлено"
	if err != nil {
		message = "Уведомление отправлено не всем получателям"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"result":  res,
	})
}

// ListByReport журнал писем по заявке
func (h *Handler) ListByReport(c *gin.Context) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	deliveries, err := h.deliveries.ListByReport(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": deliveries})
}
