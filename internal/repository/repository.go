package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/shopkart/checkout-service/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

var (
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	ErrAttemptNotFound        = errors.New("checkout attempt not found")
)

// CheckoutAttempt is the durable record of one pass through the checkout
// state machine: which order it created, how far it got, and why it stopped.
// Created-but-unpaid orders are reconciled from these rows.
type CheckoutAttempt struct {
	ID             string
	SessionID      string
	IdempotencyKey string
	State          domain.CheckoutState
	OrderID        *int64
	OrderNumber    *string
	GatewayOrderID *string
	PaymentID      *string
	FailureReason  *string
	StagedSnapshot json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type RepoInterface interface {
	Close() error
	RunMigrations(*Credentials) error
	CreateAttempt(ctx context.Context, attempt *CheckoutAttempt) error
	GetAttemptByIdempotencyKey(ctx context.Context, key string) (*CheckoutAttempt, error)
	GetActiveAttemptBySession(ctx context.Context, sessionID string) (*CheckoutAttempt, error)
	UpdateAttemptState(ctx context.Context, id *string, state *domain.CheckoutState, reason *string) error
	SetOrder(ctx context.Context, id *string, state *domain.CheckoutState, orderID int64, orderNumber string) error
	SetGatewayOrder(ctx context.Context, id *string, state *domain.CheckoutState, gatewayOrderID *string) error
	ConfirmAttempt(ctx context.Context, id *string, paymentID *string, payload []byte) error
	FailAttempt(ctx context.Context, id *string, reason string, payload []byte) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	GetStuckVerifications(ctx context.Context, olderThan time.Duration) ([]*CheckoutAttempt, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	fmt.Println("Connected to postgres!")
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "checkout_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
