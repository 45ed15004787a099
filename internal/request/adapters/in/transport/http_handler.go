package transport

import (
	"errors"
	"io"
	"net/http"

	"roadside/internal/request/application/ports/in"
	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20 // 1MB

// UseCases — входящие порты, которые обслуживает HTTP
type UseCases struct {
	Create        in.CreateRequestUseCase
	Accept        in.AcceptRequestUseCase
	Complete      in.CompleteRequestUseCase
	Cancel        in.CancelRequestUseCase
	Rate          in.RateRequestUseCase
	ListAvailable in.ListAvailableUseCase
	ListMine      in.ListMineUseCase
	Get           in.GetRequestUseCase
}

// HTTPHandler обрабатывает HTTP запросы по заявкам
type HTTPHandler struct {
	uc  UseCases
	log *logger.Logger
}

// NewHTTPHandler создает новый HTTP handler
func NewHTTPHandler(uc UseCases, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{uc: uc, log: log}
}

// RegisterRoutes регистрирует маршруты /api/v1/requests под auth middleware
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter, authMiddleware gin.HandlerFunc) {
	api := r.Group("/api/v1/requests", authMiddleware)

	api.POST("", h.handleCreate)
	api.GET("/available", h.handleListAvailable)
	api.GET("/mine", h.handleListMine)
	api.GET("/:id", h.handleGet)
	api.POST("/:id/accept", h.handleAccept)
	api.POST("/:id/complete", h.handleComplete)
	api.POST("/:id/cancel", h.handleCancel)
	api.POST("/:id/rating", h.handleRate)
}

// handleHealth — liveness
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CompleteRequestBody — цена опциональна, число или строка
type CompleteRequestBody struct {
	Price *decimal.Decimal `json:"price,omitempty"`
}

func (h *HTTPHandler) handleCreate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body domain.NewRequestInput
	if !h.bindJSON(c, &body, false) {
		return
	}

	out, err := h.uc.Create.Execute(c.Request.Context(), actor, body)
	if err != nil {
		h.handleUseCaseError(c, actor, "", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *HTTPHandler) handleListAvailable(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	list, err := h.uc.ListAvailable.Execute(c.Request.Context(), actor)
	if err != nil {
		h.handleUseCaseError(c, actor, "", err)
		return
	}
	respondList(c, list)
}

func (h *HTTPHandler) handleListMine(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	statuses, err := domain.ParseStatuses(c.Query("status"))
	if err != nil {
		h.handleUseCaseError(c, actor, "", err)
		return
	}
	list, err := h.uc.ListMine.Execute(c.Request.Context(), actor, statuses)
	if err != nil {
		h.handleUseCaseError(c, actor, "", err)
		return
	}
	respondList(c, list)
}

func (h *HTTPHandler) handleGet(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	r, err := h.uc.Get.Execute(c.Request.Context(), actor, id)
	if err != nil {
		h.handleUseCaseError(c, actor, id, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *HTTPHandler) handleAccept(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	r, err := h.uc.Accept.Execute(c.Request.Context(), actor, id)
	if err != nil {
		h.handleUseCaseError(c, actor, id, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *HTTPHandler) handleComplete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var body CompleteRequestBody
	if !h.bindJSON(c, &body, true) {
		return
	}

	r, err := h.uc.Complete.Execute(c.Request.Context(), actor, in.CompleteRequestInput{RequestID: id, Price: body.Price})
	if err != nil {
		h.handleUseCaseError(c, actor, id, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *HTTPHandler) handleCancel(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	r, err := h.uc.Cancel.Execute(c.Request.Context(), actor, id)
	if err != nil {
		h.handleUseCaseError(c, actor, id, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *HTTPHandler) handleRate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var body domain.RatingInput
	if !h.bindJSON(c, &body, false) {
		return
	}

	r, err := h.uc.Rate.Execute(c.Request.Context(), actor, id, body)
	if err != nil {
		h.handleUseCaseError(c, actor, id, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *HTTPHandler) actor(c *gin.Context) (domain.Actor, bool) {
	actor, ok := ActorFrom(c)
	if !ok {
		abortUnauthorized(c, "unauthorized")
	}
	return actor, ok
}

// bindJSON декодирует тело; пустое тело допустимо только если optional
func (h *HTTPHandler) bindJSON(c *gin.Context, dst any, optional bool) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		if optional {
			return true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty request body"})
		return false
	}

	h.log.Debug(logger.Entry{
		Action:        "parse_request_failed",
		Message:       err.Error(),
		CorrelationID: correlationID(c),
	})
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
	return false
}

// handleUseCaseError переводит доменные ошибки в HTTP статусы.
// При конфликте отдает текущее состояние заявки, если актор может его видеть.
func (h *HTTPHandler) handleUseCaseError(c *gin.Context, actor domain.Actor, requestID string, err error) {
	var (
		ve *domain.ValidationError
		ce *domain.ConflictError
		te *domain.TransportError
	)

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})

	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})

	case errors.Is(err, domain.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "service request not found"})

	case errors.As(err, &ce):
		body := gin.H{
			"error":      "conflict",
			"op":         ce.Op,
			"expected":   ce.Expected,
			"request_id": ce.RequestID,
		}
		if current, getErr := h.uc.Get.Execute(c.Request.Context(), actor, ce.RequestID); getErr == nil {
			body["current"] = current
			// из финального статуса повтор бессмысленен
			body["final"] = current.Status.Terminal()
		}
		c.JSON(http.StatusConflict, body)

	case errors.As(err, &te):
		h.log.Error(logger.Entry{
			Action:           "store_unavailable",
			Message:          err.Error(),
			CorrelationID:    correlationID(c),
			ServiceRequestID: requestID,
			Error:            &logger.ErrObj{Msg: err.Error()},
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":           "store unavailable",
			"outcome_unknown": te.OutcomeUnknown,
		})

	default:
		h.log.Error(logger.Entry{
			Action:           "usecase_error",
			Message:          err.Error(),
			CorrelationID:    correlationID(c),
			ServiceRequestID: requestID,
			Error:            &logger.ErrObj{Msg: err.Error()},
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondList(c *gin.Context, list []*domain.ServiceRequest) {
	if list == nil {
		list = []*domain.ServiceRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": list, "count": len(list)})
}
