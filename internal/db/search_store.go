package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SavedSearch is a named search query persisted across sessions
type SavedSearch struct {
	ID        int64  `json:"id"`
	Account   string `json:"account"`
	Name      string `json:"name"`
	Query     string `json:"query"`
	CreatedAt int64  `json:"created_at"`
	LastUsed  int64  `json:"last_used"`
	UseCount  int    `json:"use_count"`
}

// HistoryEntry is one executed search
type HistoryEntry struct {
	ID         int64  `json:"id"`
	Account    string `json:"account"`
	Query      string `json:"query"`
	ExecutedAt int64  `json:"executed_at"`
}

// SearchStore handles database operations for saved searches and history
type SearchStore struct {
	db *sql.DB
}

// NewSearchStore creates a search store on top of an open Store
func NewSearchStore(store *Store) *SearchStore {
	return &SearchStore{db: store.DB()}
}

// SaveSearch inserts a named search or updates it if the name already exists
func (s *SearchStore) SaveSearch(ctx context.Context, account, name, query string) (*SavedSearch, error) {
	if strings.TrimSpace(account) == "" || strings.TrimSpace(name) == "" || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("account, name, and query cannot be empty")
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_searches (account, name, query, created_at, last_used, use_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(account, name) DO UPDATE SET
			query = excluded.query,
			last_used = excluded.last_used`,
		account, name, query, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save search: %w", err)
	}

	return s.GetSearch(ctx, account, name)
}

// GetSearch retrieves a saved search by name
func (s *SearchStore) GetSearch(ctx context.Context, account, name string) (*SavedSearch, error) {
	if strings.TrimSpace(account) == "" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("account and name cannot be empty")
	}

	saved := &SavedSearch{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account, name, query, created_at, last_used, use_count
		FROM saved_searches
		WHERE account = ? AND name = ?`,
		account, name).Scan(
		&saved.ID, &saved.Account, &saved.Name, &saved.Query,
		&saved.CreatedAt, &saved.LastUsed, &saved.UseCount)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("search not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	return saved, nil
}

// ListSearches returns all saved searches for an account, most used first
func (s *SearchStore) ListSearches(ctx context.Context, account string) ([]*SavedSearch, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("account cannot be empty")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, name, query, created_at, last_used, use_count
		FROM saved_searches
		WHERE account = ?
		ORDER BY use_count DESC, last_used DESC, name ASC`,
		account)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var searches []*SavedSearch
	for rows.Next() {
		saved := &SavedSearch{}
		if err := rows.Scan(&saved.ID, &saved.Account, &saved.Name, &saved.Query,
			&saved.CreatedAt, &saved.LastUsed, &saved.UseCount); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		searches = append(searches, saved)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return searches, nil
}

// TouchSearch increments use count and refreshes last_used
func (s *SearchStore) TouchSearch(ctx context.Context, account string, id int64) error {
	if strings.TrimSpace(account) == "" || id <= 0 {
		return fmt.Errorf("account cannot be empty and id must be positive")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE saved_searches
		SET use_count = use_count + 1, last_used = ?
		WHERE account = ? AND id = ?`,
		time.Now().Unix(), account, id)
	if err != nil {
		return fmt.Errorf("failed to update search usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("search not found")
	}
	return nil
}

// DeleteSearch removes a saved search
func (s *SearchStore) DeleteSearch(ctx context.Context, account string, id int64) error {
	if strings.TrimSpace(account) == "" || id <= 0 {
		return fmt.Errorf("account cannot be empty and id must be positive")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM saved_searches
		WHERE account = ? AND id = ?`,
		account, id)
	if err != nil {
		return fmt.Errorf("failed to delete search: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("search not found")
	}
	return nil
}

// RecordHistory appends one executed search to the history
func (s *SearchStore) RecordHistory(ctx context.Context, account, query string) error {
	if strings.TrimSpace(account) == "" || strings.TrimSpace(query) == "" {
		return fmt.Errorf("account and query cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (account, query, executed_at)
		VALUES (?, ?, ?)`,
		account, query, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// RecentHistory returns the most recent executed searches, newest first
func (s *SearchStore) RecentHistory(ctx context.Context, account string, limit int) ([]*HistoryEntry, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("account cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, query, executed_at
		FROM search_history
		WHERE account = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`,
		account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		if err := rows.Scan(&e.ID, &e.Account, &e.Query, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}
