package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"transit-pass-api/internal/models"
	"transit-pass-api/internal/store"
)

// DB persists the store's records as JSON documents in SQLite. Rows keep their insertion
// order, which is the order the store lists them in.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection, for the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS clients (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			active INTEGER NOT NULL,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			status TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			subscription_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_client ON subscriptions(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_subscription ON trips(subscription_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_client ON trips(client_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func upsertClient(ctx context.Context, ex execer, c models.Client) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode client: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO clients (id, status, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Status), string(body), stamp(c.LastUpdated))
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}
	return nil
}

func upsertPlan(ctx context.Context, ex execer, p models.SubscriptionPlan) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO plans (id, active, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active = excluded.active,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		p.ID, p.Active, string(body), stamp(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}
	return nil
}

func upsertSubscription(ctx context.Context, ex execer, s models.Subscription) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO subscriptions (id, client_id, status, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		s.ID, s.ClientID, string(s.Status), string(body), stamp(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func insertTrip(ctx context.Context, ex execer, t models.TripRecord) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode trip: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO trips (id, subscription_id, client_id, occurred_at, body)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.SubscriptionID, t.ClientID, stamp(t.Timestamp), string(body))
	if err != nil {
		return fmt.Errorf("failed to insert trip %s: %w", t.ID, err)
	}
	return nil
}

// SaveClient implements store.Persister.
func (db *DB) SaveClient(ctx context.Context, c models.Client) error {
	return upsertClient(ctx, db.conn, c)
}

// DeleteClient implements store.Persister. Subscriptions keep their client snapshot.
func (db *DB) DeleteClient(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

// SavePlan implements store.Persister.
func (db *DB) SavePlan(ctx context.Context, p models.SubscriptionPlan) error {
	return upsertPlan(ctx, db.conn, p)
}

// SaveSubscription implements store.Persister.
func (db *DB) SaveSubscription(ctx context.Context, s models.Subscription) error {
	return upsertSubscription(ctx, db.conn, s)
}

// SaveTripWithSubscription implements store.Persister. The trip insert and the
// subscription counter update commit together.
func (db *DB) SaveTripWithSubscription(ctx context.Context, t models.TripRecord, s models.Subscription) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertSubscription(ctx, tx, s); err != nil {
		return err
	}
	if err := insertTrip(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveDataset writes a whole dataset in one transaction, e.g. the sample data on first start.
func (db *DB) SaveDataset(ctx context.Context, data store.Dataset) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range data.Clients {
		if err := upsertClient(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, p := range data.Plans {
		if err := upsertPlan(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, s := range data.Subscriptions {
		if err := upsertSubscription(ctx, tx, s); err != nil {
			return err
		}
	}
	for _, t := range data.Trips {
		if err := insertTrip(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads every record back in insertion order.
func (db *DB) Load(ctx context.Context) (store.Dataset, error) {
	var data store.Dataset
	var err error

	if data.Clients, err = loadTable[models.Client](ctx, db.conn, "clients"); err != nil {
		return store.Dataset{}, err
	}
	if data.Plans, err = loadTable[models.SubscriptionPlan](ctx, db.conn, "plans"); err != nil {
		return store.Dataset{}, err
	}
	if data.Subscriptions, err = loadTable[models.Subscription](ctx, db.conn, "subscriptions"); err != nil {
		return store.Dataset{}, err
	}
	if data.Trips, err = loadTable[models.TripRecord](ctx, db.conn, "trips"); err != nil {
		return store.Dataset{}, err
	}
	return data, nil
}

// Empty reports whether no client or plan has been stored yet.
func (db *DB) Empty(ctx context.Context) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM clients) + (SELECT COUNT(*) FROM plans)`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count records: %w", err)
	}
	return n == 0, nil
}

// table names are constants from Load; never user input.
func loadTable[T any](ctx context.Context, conn *sql.DB, table string) ([]T, error) {
	rows, err := conn.QueryContext(ctx, `SELECT body FROM `+table+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return out, nil
}
