package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vaidashi/marketplace-orders/internal/config"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                  VARCHAR(64) PRIMARY KEY,
	order_number        VARCHAR(32) NOT NULL UNIQUE,
	buyer_id            VARCHAR(64) NOT NULL,
	seller_id           VARCHAR(64) NOT NULL,
	shop_name           VARCHAR(255) NOT NULL,
	seller_phone        VARCHAR(32) NOT NULL DEFAULT '',
	total_amount        BIGINT NOT NULL CHECK (total_amount > 0),
	platform_fee_rate   NUMERIC(5, 2) NOT NULL CHECK (platform_fee_rate BETWEEN 0 AND 100),
	platform_fee        BIGINT NOT NULL,
	seller_amount       BIGINT NOT NULL,
	status              VARCHAR(20) NOT NULL DEFAULT 'pending',
	payment_status      VARCHAR(10) NOT NULL DEFAULT 'unpaid',
	payment_reference   VARCHAR(128),
	delivery_name       VARCHAR(255) NOT NULL,
	delivery_phone      VARCHAR(32) NOT NULL,
	delivery_address    TEXT NOT NULL,
	delivery_notes      TEXT,
	ready_for_pickup_at TIMESTAMPTZ,
	shipped_at          TIMESTAMPTZ,
	delivered_at        TIMESTAMPTZ,
	payout_status       VARCHAR(10) NOT NULL DEFAULT 'pending',
	payout_date         TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (platform_fee + seller_amount = total_amount)
);

CREATE INDEX IF NOT EXISTS idx_orders_buyer_id ON orders(buyer_id);
CREATE INDEX IF NOT EXISTS idx_orders_seller_id ON orders(seller_id);
CREATE INDEX IF NOT EXISTS idx_orders_payout_due ON orders(payout_status, payout_date);

CREATE TABLE IF NOT EXISTS order_items (
	id            VARCHAR(64) PRIMARY KEY,
	order_id      VARCHAR(64) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id    VARCHAR(64) NOT NULL,
	product_name  VARCHAR(255) NOT NULL,
	product_price BIGINT NOT NULL,
	quantity      INT NOT NULL CHECK (quantity > 0),
	subtotal      BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

CREATE TABLE IF NOT EXISTS order_status_history (
	id         BIGSERIAL PRIMARY KEY,
	order_id   VARCHAR(64) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	old_status VARCHAR(20),
	new_status VARCHAR(20) NOT NULL,
	actor_id   VARCHAR(64),
	note       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at, id);

CREATE TABLE IF NOT EXISTS reviews (
	id                 VARCHAR(64) PRIMARY KEY,
	product_id         VARCHAR(64) NOT NULL,
	buyer_id           VARCHAR(64) NOT NULL,
	order_id           VARCHAR(64) NOT NULL REFERENCES orders(id),
	seller_id          VARCHAR(64) NOT NULL,
	rating             SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
	title              VARCHAR(255),
	comment            TEXT,
	seller_response    TEXT,
	seller_response_at TIMESTAMPTZ,
	helpful_count      INT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (product_id, buyer_id, order_id)
);

CREATE INDEX IF NOT EXISTS idx_reviews_product_id ON reviews(product_id);

CREATE TABLE IF NOT EXISTS review_helpful (
	review_id  VARCHAR(64) NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	user_id    VARCHAR(64) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (review_id, user_id)
);

CREATE TABLE IF NOT EXISTS outbox_messages (
	id                  BIGSERIAL PRIMARY KEY,
	aggregate_type      VARCHAR(50) NOT NULL,
	aggregate_id        VARCHAR(64) NOT NULL,
	event_type          VARCHAR(50) NOT NULL,
	payload             JSONB NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at        TIMESTAMPTZ,
	claimed_at          TIMESTAMPTZ,
	processing_attempts INT NOT NULL DEFAULT 0,
	last_error          TEXT,
	status              VARCHAR(20) NOT NULL DEFAULT 'pending'
);

ALTER TABLE outbox_messages ADD COLUMN IF NOT EXISTS claimed_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);
`

// RunMigrations creates the schema if it does not exist
func (d *Database) RunMigrations(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}
