package domain

import "time"

type BookingCreatedEvent struct {
	BookingID           string        `json:"booking_id"`
	CustomerID          string        `json:"customer_id"`
	DeliveryAddress     string        `json:"delivery_address"`
	ScheduledDate       time.Time     `json:"scheduled_date"`
	Items               []BookingItem `json:"items"`
	WorkflowExecutionID string        `json:"workflow_execution_id"`
	Timestamp           time.Time     `json:"timestamp"`
}
