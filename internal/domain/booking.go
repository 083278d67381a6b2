package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusProcessing BookingStatus = "PROCESSING"
	BookingStatusFailed     BookingStatus = "FAILED"
)

type BookingItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type Booking struct {
	ID                  string        `json:"id"`
	CustomerID          string        `json:"customerId"`
	DeliveryAddress     string        `json:"deliveryAddress"`
	ScheduledDate       time.Time     `json:"scheduledDate"`
	Items               []BookingItem `json:"items"`
	Status              BookingStatus `json:"status"`
	WorkflowExecutionID string        `json:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
}
