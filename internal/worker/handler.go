package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/logistics-bookings/internal/domain"
)

// NotificationHandler turns booking.created events into customer
// notifications. It never touches booking state; workflow progression
// belongs to the engine.
type NotificationHandler struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotificationHandler(webhookURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		webhookURL: webhookURL,
		httpClient: client,
		logger:     logger,
	}
}

type notification struct {
	BookingID  string `json:"booking_id"`
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.BookingCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal booking created event: %w", err)
	}

	h.logger.Info("processing booking created event",
		"booking_id", event.BookingID,
		"customer_id", event.CustomerID,
		"execution_id", event.WorkflowExecutionID,
	)

	msg := notification{
		BookingID:  event.BookingID,
		CustomerID: event.CustomerID,
		Message: fmt.Sprintf("Your delivery to %s is booked for %s (%d items).",
			event.DeliveryAddress, event.ScheduledDate.Format("2006-01-02"), len(event.Items)),
	}

	if h.webhookURL == "" {
		h.logger.Info("booking notification", "booking_id", msg.BookingID, "message", msg.Message)
		return nil
	}

	if err := h.deliver(ctx, msg); err != nil {
		h.logger.Error("failed to deliver notification", "error", err, "booking_id", event.BookingID)
		return fmt.Errorf("deliver notification: %w", err)
	}

	h.logger.Info("booking notification delivered", "booking_id", event.BookingID)
	return nil
}

func (h *NotificationHandler) deliver(ctx context.Context, msg notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	return nil
}
