package api

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/Domenick1991/roombooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const privateKeyHeader = "X-Private-Key"

type BookingHandler struct {
	service  booking.BookingUseCase
	validate *validator.Validate
	log      *slog.Logger
}

type bookingRequest struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Location     string     `json:"location" validate:"required,max=200"`
	Description  string     `json:"description" validate:"required,min=10,max=200"`
	RoomNumber   *int       `json:"room_number" validate:"omitempty,min=101,max=105"`
	StartTime    *time.Time `json:"start_time" validate:"required"`
	EndTime      *time.Time `json:"end_time" validate:"required"`
	AccessType   string     `json:"access_type" validate:"required,oneof=PUBLIC PRIVATE"`
	AccessCode   string     `json:"access_code" validate:"max=64"`
	Participants string     `json:"participants" validate:"max=1000"`
}

func (r bookingRequest) toInput() booking.BookingInput {
	return booking.BookingInput{
		Title:        r.Title,
		Location:     r.Location,
		Description:  r.Description,
		RoomNumber:   r.RoomNumber,
		StartTime:    *r.StartTime,
		EndTime:      *r.EndTime,
		AccessType:   domain.AccessType(r.AccessType),
		AccessCode:   r.AccessCode,
		Participants: booking.ParseParticipants(r.Participants),
	}
}

type createBookingResponse struct {
	ID         int64  `json:"id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

type bookingResponse struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Location     string   `json:"location"`
	Description  string   `json:"description,omitempty"`
	RoomNumber   *int     `json:"room_number,omitempty"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	AccessType   string   `json:"access_type"`
	Participants []string `json:"participants"`
	// Owner-only fields.
	AccessCode string `json:"access_code,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

func toBookingResponse(b *domain.Booking, owner bool) bookingResponse {
	resp := bookingResponse{
		ID:           b.ID,
		Title:        b.Title,
		Location:     b.Location,
		Description:  b.Description,
		RoomNumber:   b.RoomNumber,
		StartTime:    b.StartTime.Format(time.RFC3339),
		EndTime:      b.EndTime.Format(time.RFC3339),
		AccessType:   string(b.AccessType),
		Participants: b.ParticipantNames(),
	}
	if owner {
		resp.AccessCode = b.AccessCode
		resp.PublicKey = b.PublicKey
		resp.PrivateKey = b.PrivateKey
	}
	return resp
}

func NewBookingHandler(service booking.BookingUseCase, log *slog.Logger) *BookingHandler {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &BookingHandler{service: service, validate: v, log: log}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.POST("", h.create)
	router.PUT("/:id", h.update)
	router.DELETE("/:id", h.delete)
}

func (h *BookingHandler) list(c *gin.Context) {
	bookings, err := h.service.ListBookings(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *BookingHandler) create(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, createBookingResponse{
		ID:         b.ID,
		PublicKey:  b.PublicKey,
		PrivateKey: b.PrivateKey,
	})
}

func (h *BookingHandler) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}

	b, err := h.service.UpdateBooking(c.Request.Context(), id, c.GetHeader(privateKeyHeader), req.toInput())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b, true))
}

func (h *BookingHandler) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteBooking(c.Request.Context(), id, c.GetHeader(privateKeyHeader)); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// bind decodes and validates the request body, writing a 400 on failure.
func (h *BookingHandler) bind(c *gin.Context) (bookingRequest, bool) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			c.JSON(http.StatusBadRequest, translateValidationErrors(validationErrs))
			return req, false
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return req, false
	}
	return req, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
