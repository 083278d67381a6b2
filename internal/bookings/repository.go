package bookings

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/logistics-bookings/internal/domain"
)

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	booking.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, customer_id, delivery_address, scheduled_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, booking.ID, booking.CustomerID, booking.DeliveryAddress, booking.ScheduledDate, booking.Status, booking.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range booking.Items {
		itemID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO booking_items (id, booking_id, item_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, itemID, booking.ID, item.ItemID, item.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var executionID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, delivery_address, scheduled_date, status, workflow_execution_id, created_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(&booking.ID, &booking.CustomerID, &booking.DeliveryAddress, &booking.ScheduledDate,
		&booking.Status, &executionID, &booking.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	booking.WorkflowExecutionID = executionID.String

	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, quantity
		FROM booking_items
		WHERE booking_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.BookingItem
		if err := rows.Scan(&item.ItemID, &item.Quantity); err != nil {
			return nil, err
		}
		booking.Items = append(booking.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return booking, nil
}

func (r *BookingRepository) UpdateWorkflow(ctx context.Context, id, executionID string, status domain.BookingStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET workflow_execution_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`, executionID, status, id)
	return err
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	return err
}

func (r *BookingRepository) List(ctx context.Context) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, delivery_address, scheduled_date, status, workflow_execution_id, created_at
		FROM bookings
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	bookingMap := make(map[string]*domain.Booking)
	var bookingIDs []string

	for rows.Next() {
		var booking domain.Booking
		var executionID sql.NullString
		if err := rows.Scan(&booking.ID, &booking.CustomerID, &booking.DeliveryAddress, &booking.ScheduledDate,
			&booking.Status, &executionID, &booking.CreatedAt); err != nil {
			return nil, err
		}
		booking.WorkflowExecutionID = executionID.String
		booking.Items = []domain.BookingItem{}
		bookingMap[booking.ID] = &booking
		bookingIDs = append(bookingIDs, booking.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(bookingIDs) == 0 {
		return []domain.Booking{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT booking_id, item_id, quantity
		FROM booking_items
		WHERE booking_id = ANY($1)
	`, pq.Array(bookingIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var bookingID string
		var item domain.BookingItem
		if err := itemRows.Scan(&bookingID, &item.ItemID, &item.Quantity); err != nil {
			return nil, err
		}
		booking := bookingMap[bookingID]
		booking.Items = append(booking.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	bookings := make([]domain.Booking, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		bookings = append(bookings, *bookingMap[id])
	}

	return bookings, nil
}
