package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/joao-fontenele/logistics-bookings/internal/domain"
	"github.com/joao-fontenele/logistics-bookings/internal/kestra"
)

const (
	workflowID        = "logistics-booking-flow"
	workflowNamespace = "logistics"
)

// ErrBookingNotFound carries the client-visible message for unknown ids.
var ErrBookingNotFound = errors.New("Booking not found")

type BookingStore interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	UpdateWorkflow(ctx context.Context, id, executionID string, status domain.BookingStatus) error
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error
	List(ctx context.Context) ([]domain.Booking, error)
}

type WorkflowClient interface {
	Trigger(ctx context.Context, workflowID, namespace string, inputs map[string]any) (*kestra.Execution, error)
	Status(ctx context.Context, executionID string) (json.RawMessage, error)
}

type Service struct {
	store    BookingStore
	workflow WorkflowClient
	logger   *slog.Logger
}

func NewService(store BookingStore, workflow WorkflowClient, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		workflow: workflow,
		logger:   logger,
	}
}

type CreateBookingInput struct {
	CustomerID      string
	DeliveryAddress string
	ScheduledDate   time.Time
	Items           []domain.BookingItem
}

type CreateBookingResult struct {
	Booking             *domain.Booking `json:"booking"`
	WorkflowExecutionID string          `json:"workflowExecutionId"`
}

type StatusResult struct {
	Booking        *domain.Booking `json:"booking"`
	WorkflowStatus json.RawMessage `json:"workflowStatus,omitempty"`
}

// CreateBooking persists a PENDING booking, triggers the delivery
// workflow with it, and records the accepted execution. Any failure
// after the initial insert marks the booking FAILED in the store and
// surfaces the original error.
func (s *Service) CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error) {
	booking := &domain.Booking{
		CustomerID:      input.CustomerID,
		DeliveryAddress: input.DeliveryAddress,
		ScheduledDate:   input.ScheduledDate,
		Items:           input.Items,
		Status:          domain.BookingStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.Create(ctx, booking); err != nil {
		return nil, err
	}

	execution, err := s.workflow.Trigger(ctx, workflowID, workflowNamespace, map[string]any{
		"bookingId":       booking.ID,
		"customerId":      booking.CustomerID,
		"deliveryAddress": booking.DeliveryAddress,
		"scheduledDate":   booking.ScheduledDate,
		"items":           booking.Items,
	})
	if err != nil {
		s.markFailed(ctx, booking)
		return nil, err
	}

	booking.WorkflowExecutionID = execution.ID
	booking.Status = domain.BookingStatusProcessing
	if err := s.store.UpdateWorkflow(ctx, booking.ID, execution.ID, domain.BookingStatusProcessing); err != nil {
		s.markFailed(ctx, booking)
		return nil, err
	}

	s.logger.Info("booking created", "booking_id", booking.ID, "execution_id", execution.ID, "state", execution.State)

	return &CreateBookingResult{
		Booking:             booking,
		WorkflowExecutionID: execution.ID,
	}, nil
}

// markFailed records the terminal FAILED status. Its own failure is
// logged only, so the caller always sees the error that caused it.
func (s *Service) markFailed(ctx context.Context, booking *domain.Booking) {
	booking.Status = domain.BookingStatusFailed
	if err := s.store.UpdateStatus(ctx, booking.ID, domain.BookingStatusFailed); err != nil {
		s.logger.Error("failed to persist failed booking status", "error", err, "booking_id", booking.ID)
	}
}

func (s *Service) GetBookingStatus(ctx context.Context, id string) (*StatusResult, error) {
	booking, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}

	if booking.WorkflowExecutionID == "" {
		return &StatusResult{Booking: booking}, nil
	}

	workflowStatus, err := s.workflow.Status(ctx, booking.WorkflowExecutionID)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		Booking:        booking,
		WorkflowStatus: workflowStatus,
	}, nil
}

func (s *Service) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	return s.store.List(ctx)
}
