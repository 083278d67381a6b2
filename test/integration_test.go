//go:build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/joao-fontenele/logistics-bookings/internal/bookings"
	"github.com/joao-fontenele/logistics-bookings/internal/domain"
	"github.com/joao-fontenele/logistics-bookings/internal/kestra"
	"github.com/joao-fontenele/logistics-bookings/internal/messaging"
	"github.com/joao-fontenele/logistics-bookings/internal/worker"
)

const createBookingBody = `{"customerId":"123","deliveryAddress":"Test Address","scheduledDate":"2024-01-01T00:00:00Z","items":[{"itemId":"1","quantity":2}]}`

func newBookingsServer(t *testing.T, connStr, kestraURL string, kestraClient *http.Client) (*httptest.Server, *bookings.BookingRepository) {
	t.Helper()

	db, err := DBWithSchema(connStr, "bookings")
	if err != nil {
		t.Fatalf("failed to open bookings DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := bookings.NewBookingRepository(db)
	workflowClient := kestra.NewClient(kestraURL, kestraClient, logger)
	service := bookings.NewService(repo, workflowClient, logger)
	handler := bookings.NewHandler(service, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /bookings", handler.HandleList)
	mux.HandleFunc("POST /bookings", handler.HandleCreate)
	mux.HandleFunc("GET /bookings/{id}/status", handler.HandleStatus)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, repo
}

func TestBookingCreationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	kestraServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/executions/logistics/logistics-booking-flow" {
			t.Errorf("unexpected kestra path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse trigger form: %v", err)
		}
		if r.FormValue("customerId") != "123" {
			t.Errorf("expected customerId input '123', got %q", r.FormValue("customerId"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"workflow-1","state":{"current":"RUNNING"}}`))
	}))
	defer kestraServer.Close()

	server, repo := newBookingsServer(t, pg.ConnStr, kestraServer.URL, kestraServer.Client())

	resp, err := http.Post(server.URL+"/bookings", "application/json", strings.NewReader(createBookingBody))
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status 201, got %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Booking             domain.Booking `json:"booking"`
		WorkflowExecutionID string         `json:"workflowExecutionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result.WorkflowExecutionID != "workflow-1" {
		t.Errorf("expected workflowExecutionId 'workflow-1', got %q", result.WorkflowExecutionID)
	}
	if result.Booking.Status != domain.BookingStatusProcessing {
		t.Errorf("expected status PROCESSING, got %s", result.Booking.Status)
	}

	stored, err := repo.GetByID(ctx, result.Booking.ID)
	if err != nil {
		t.Fatalf("failed to fetch booking: %v", err)
	}
	if stored == nil {
		t.Fatal("booking not found in database")
	}
	if stored.Status != domain.BookingStatusProcessing {
		t.Errorf("expected stored status PROCESSING, got %s", stored.Status)
	}
	if stored.WorkflowExecutionID != "workflow-1" {
		t.Errorf("expected stored execution id 'workflow-1', got %q", stored.WorkflowExecutionID)
	}
	if len(stored.Items) != 1 || stored.Items[0].ItemID != "1" || stored.Items[0].Quantity != 2 {
		t.Errorf("unexpected stored items: %+v", stored.Items)
	}
}

func TestBookingCreationWithEngineDown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	kestraServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"engine unavailable"}`))
	}))
	defer kestraServer.Close()

	server, repo := newBookingsServer(t, pg.ConnStr, kestraServer.URL, kestraServer.Client())

	resp, err := http.Post(server.URL+"/bookings", "application/json", strings.NewReader(createBookingBody))
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}

	var errResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if !strings.Contains(errResp["error"], "engine unavailable") {
		t.Errorf("expected remote message in error, got %q", errResp["error"])
	}

	stored, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("failed to list bookings: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(stored))
	}
	if stored[0].Status != domain.BookingStatusFailed {
		t.Errorf("expected stored status FAILED, got %s", stored[0].Status)
	}
	if stored[0].WorkflowExecutionID != "" {
		t.Errorf("expected no execution id, got %q", stored[0].WorkflowExecutionID)
	}
}

func TestBookingStatusFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	kestraMux := http.NewServeMux()
	kestraMux.HandleFunc("POST /api/v1/executions/logistics/logistics-booking-flow", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"workflow-1","state":{"current":"RUNNING"}}`))
	})
	kestraMux.HandleFunc("GET /api/v1/executions/{executionId}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("executionId") != "workflow-1" {
			t.Errorf("unexpected execution id: %s", r.PathValue("executionId"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"workflow-1","state":{"current":"COMPLETED"}}`))
	})
	kestraServer := httptest.NewServer(kestraMux)
	defer kestraServer.Close()

	server, _ := newBookingsServer(t, pg.ConnStr, kestraServer.URL, kestraServer.Client())

	createResp, err := http.Post(server.URL+"/bookings", "application/json", strings.NewReader(createBookingBody))
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	var created struct {
		Booking domain.Booking `json:"booking"`
	}
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	_ = createResp.Body.Close()

	statusResp, err := http.Get(server.URL + "/bookings/" + created.Booking.ID + "/status")
	if err != nil {
		t.Fatalf("failed to get booking status: %v", err)
	}
	defer func() { _ = statusResp.Body.Close() }()

	if statusResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(statusResp.Body)
		t.Fatalf("expected status 200, got %d: %s", statusResp.StatusCode, body)
	}

	var status struct {
		Booking        domain.Booking `json:"booking"`
		WorkflowStatus struct {
			ID    string `json:"id"`
			State struct {
				Current string `json:"current"`
			} `json:"state"`
		} `json:"workflowStatus"`
	}
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}

	if status.Booking.Status != domain.BookingStatusProcessing {
		t.Errorf("expected booking status PROCESSING, got %s", status.Booking.Status)
	}
	if status.WorkflowStatus.ID != "workflow-1" || status.WorkflowStatus.State.Current != "COMPLETED" {
		t.Errorf("unexpected workflow status: %+v", status.WorkflowStatus)
	}

	missingResp, err := http.Get(server.URL + "/bookings/00000000-0000-0000-0000-000000000000/status")
	if err != nil {
		t.Fatalf("failed to get missing booking status: %v", err)
	}
	defer func() { _ = missingResp.Body.Close() }()

	if missingResp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown booking, got %d", missingResp.StatusCode)
	}
}

func TestBookingEventNotification(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	var mu sync.Mutex
	var received []map[string]string
	webhookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]string
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("failed to decode notification: %v", err)
		}
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer webhookServer.Close()

	producer := messaging.NewProducer(brokers, "booking.created")
	defer func() { _ = producer.Close() }()

	event := domain.BookingCreatedEvent{
		BookingID:           "booking-1",
		CustomerID:          "123",
		DeliveryAddress:     "Test Address",
		ScheduledDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Items:               []domain.BookingItem{{ItemID: "1", Quantity: 2}},
		WorkflowExecutionID: "workflow-1",
		Timestamp:           time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.BookingID, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notificationHandler := worker.NewNotificationHandler(webhookServer.URL, webhookServer.Client(), logger)

	consumer := messaging.NewConsumer(brokers, "booking.created", "notification-worker",
		messaging.WithStartOffset(kafkago.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	handled := make(chan struct{})
	go func() {
		<-handled
		stopConsumer()
	}()

	err := consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
		defer close(handled)
		return notificationHandler.Handle(ctx, payload)
	})
	if err != nil && consumeCtx.Err() == nil {
		t.Fatalf("consumer error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(received))
	}
	if received[0]["booking_id"] != "booking-1" {
		t.Errorf("unexpected notification: %+v", received[0])
	}
}
