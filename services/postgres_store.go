package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements SettlementStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settlements (
		house VARCHAR(128) NOT NULL,
		auction_id BIGINT NOT NULL,
		winner VARCHAR(128) NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		fee NUMERIC(78, 0) NOT NULL,
		proceeds NUMERIC(78, 0) NOT NULL,
		beneficiary VARCHAR(128) NOT NULL,
		award_token_id BIGINT NOT NULL DEFAULT 0,
		settled_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (house, auction_id)
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_winner ON settlements(winner);
	CREATE INDEX IF NOT EXISTS idx_settlements_settled ON settlements(settled_at);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSettlement upserts one settlement record.
func (s *PostgresStore) SaveSettlement(rec *SettlementRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO settlements
		(house, auction_id, winner, amount, fee, proceeds, beneficiary, award_token_id, settled_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (house, auction_id) DO UPDATE SET
		winner = EXCLUDED.winner,
		amount = EXCLUDED.amount,
		fee = EXCLUDED.fee,
		proceeds = EXCLUDED.proceeds,
		beneficiary = EXCLUDED.beneficiary,
		award_token_id = EXCLUDED.award_token_id,
		settled_at = EXCLUDED.settled_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.House,
		rec.AuctionID,
		rec.Winner,
		rec.Amount,
		rec.Fee,
		rec.Proceeds,
		rec.Beneficiary,
		rec.AwardTokenID,
		rec.SettledAt,
	)
	return err
}

// LoadSettlements retrieves the records for one house, or for every house
// when houseName is empty, ordered by auction id.
func (s *PostgresStore) LoadSettlements(houseName string) ([]*SettlementRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := `
	SELECT house, auction_id, winner, amount, fee, proceeds, beneficiary, award_token_id, settled_at
	FROM settlements
	`
	args := []any{}
	if houseName != "" {
		query += " WHERE house = $1"
		args = append(args, houseName)
	}
	query += " ORDER BY house, auction_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SettlementRecord
	for rows.Next() {
		rec := &SettlementRecord{}
		if err := rows.Scan(
			&rec.House,
			&rec.AuctionID,
			&rec.Winner,
			&rec.Amount,
			&rec.Fee,
			&rec.Proceeds,
			&rec.Beneficiary,
			&rec.AwardTokenID,
			&rec.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// MemoryStore implements SettlementStore for testing without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[uint64]*SettlementRecord
}

// NewMemoryStore creates an empty in-memory settlement store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[uint64]*SettlementRecord)}
}

// SaveSettlement stores a copy of the record.
func (s *MemoryStore) SaveSettlement(rec *SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.records[rec.House]
	if !ok {
		byID = make(map[uint64]*SettlementRecord)
		s.records[rec.House] = byID
	}
	cp := *rec
	byID[rec.AuctionID] = &cp
	return nil
}

// LoadSettlements returns copies ordered by house then auction id.
func (s *MemoryStore) LoadSettlements(houseName string) ([]*SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	houses := make([]string, 0, len(s.records))
	if houseName != "" {
		houses = append(houses, houseName)
	} else {
		for name := range s.records {
			houses = append(houses, name)
		}
		sort.Strings(houses)
	}

	var records []*SettlementRecord
	for _, name := range houses {
		byID := s.records[name]
		ids := make([]uint64, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			cp := *byID[id]
			records = append(records, &cp)
		}
	}
	return records, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
