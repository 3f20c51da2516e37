package api

import (
	"log/slog"
	"net/http"

	"github.com/Domenick1991/roombooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

// AccessHandler serves the "enter a key" flow.
type AccessHandler struct {
	service booking.BookingUseCase
	log     *slog.Logger
}

type accessResponse struct {
	View    string          `json:"view"`
	Booking bookingResponse `json:"booking"`
}

func NewAccessHandler(service booking.BookingUseCase, log *slog.Logger) *AccessHandler {
	return &AccessHandler{service: service, log: log}
}

func (h *AccessHandler) Register(router *gin.RouterGroup) {
	router.GET("/access", h.access)
}

func (h *AccessHandler) access(c *gin.Context) {
	view, err := h.service.ViewBooking(c.Request.Context(), c.Query("key"), c.Query("code"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, accessResponse{
		View:    view.Kind.String(),
		Booking: toBookingResponse(view.Booking, view.Kind == booking.ViewOwner),
	})
}
