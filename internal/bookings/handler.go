package bookings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/logistics-bookings/internal/domain"
	"github.com/joao-fontenele/logistics-bookings/internal/messaging"
)

type Handler struct {
	service  *Service
	producer *messaging.Producer
	logger   *slog.Logger
}

func NewHandler(service *Service, producer *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		producer: producer,
		logger:   logger,
	}
}

type createBookingRequest struct {
	CustomerID      string               `json:"customerId"`
	DeliveryAddress string               `json:"deliveryAddress"`
	ScheduledDate   string               `json:"scheduledDate"`
	Items           []domain.BookingItem `json:"items"`
}

func (r *createBookingRequest) validate() (CreateBookingInput, error) {
	var input CreateBookingInput

	if r.CustomerID == "" {
		return input, errors.New("customerId is required")
	}
	if r.DeliveryAddress == "" {
		return input, errors.New("deliveryAddress is required")
	}
	if r.ScheduledDate == "" {
		return input, errors.New("scheduledDate is required")
	}
	scheduledDate, err := time.Parse(time.RFC3339, r.ScheduledDate)
	if err != nil {
		return input, errors.New("scheduledDate must be an ISO-8601 timestamp")
	}
	if r.Items == nil {
		return input, errors.New("items is required")
	}
	for _, item := range r.Items {
		if item.ItemID == "" {
			return input, errors.New("items entries require an itemId")
		}
	}

	input.CustomerID = r.CustomerID
	input.DeliveryAddress = r.DeliveryAddress
	input.ScheduledDate = scheduledDate
	input.Items = r.Items
	return input, nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := req.validate()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.CreateBooking(r.Context(), input)
	if err != nil {
		h.logger.Error("failed to create booking", "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.producer != nil {
		event := domain.BookingCreatedEvent{
			BookingID:           result.Booking.ID,
			CustomerID:          result.Booking.CustomerID,
			DeliveryAddress:     result.Booking.DeliveryAddress,
			ScheduledDate:       result.Booking.ScheduledDate,
			Items:               result.Booking.Items,
			WorkflowExecutionID: result.WorkflowExecutionID,
			Timestamp:           result.Booking.CreatedAt,
		}
		if err := h.producer.Publish(r.Context(), result.Booking.ID, event); err != nil {
			h.logger.Error("failed to publish booking created event", "error", err, "booking_id", result.Booking.ID)
		}
	}

	h.logger.Info("booking accepted", "booking_id", result.Booking.ID, "customer_id", result.Booking.CustomerID)
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing booking id")
		return
	}

	result, err := h.service.GetBookingStatus(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get booking status", "error", err, "id", id)
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info("booking status retrieved", "booking_id", result.Booking.ID, "status", result.Booking.Status)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.service.ListBookings(r.Context())
	if err != nil {
		h.logger.Error("failed to list bookings", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("bookings listed", "count", len(bookings))
	h.writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
