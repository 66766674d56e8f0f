// Package catalog provides the local article catalog backing variant
// selection and quantity validation. The catalog is consulted before any
// remote interaction; an article unknown here never reaches the remote
// surface.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Article is one catalog article with its orderable variants.
type Article struct {
	Code     string
	Name     string
	Variants []Variant
}

// Variant is one orderable variant of an article.
type Variant struct {
	ID             string
	ArticleCode    string
	Suffix         string
	PackageContent string
	MultipleQty    int
	MinQty         int
	MaxQty         int
	IsDefault      bool
	Name           string
}

// Store is the SQLite-backed catalog store.
type Store struct {
	db   *sql.DB
	path string
}

// Config holds catalog store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a catalog store instance. Call Init before use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("catalog database path is required")
	}
	return &Store{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open catalog database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping catalog database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs schema migrations from the embedded source.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("catalog database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// GetArticle loads an article and its variants, or nil when the code is
// unknown.
func (s *Store) GetArticle(ctx context.Context, code string) (*Article, error) {
	var a Article
	err := s.db.QueryRowContext(ctx,
		"SELECT code, name FROM articles WHERE code = ?", code,
	).Scan(&a.Code, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", code, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_code, suffix, package_content, multiple_qty, min_qty, max_qty, is_default, name
		FROM variants WHERE article_code = ?
		ORDER BY is_default DESC, id
	`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants of %s: %w", code, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ArticleCode, &v.Suffix, &v.PackageContent,
			&v.MultipleQty, &v.MinQty, &v.MaxQty, &v.IsDefault, &v.Name); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		a.Variants = append(a.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variants: %w", err)
	}
	return &a, nil
}

// UpsertArticle inserts or updates an article and replaces its variants.
func (s *Store) UpsertArticle(ctx context.Context, a *Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (code, name) VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP
	`, a.Code, a.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert article %s: %w", a.Code, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM variants WHERE article_code = ?", a.Code); err != nil {
		return fmt.Errorf("failed to clear variants of %s: %w", a.Code, err)
	}
	for _, v := range a.Variants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO variants (id, article_code, suffix, package_content, multiple_qty, min_qty, max_qty, is_default, name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, v.ID, a.Code, v.Suffix, v.PackageContent, v.MultipleQty, v.MinQty, v.MaxQty, v.IsDefault, v.Name)
		if err != nil {
			return fmt.Errorf("failed to insert variant %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

// ListArticles returns every article code in the catalog.
func (s *Store) ListArticles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code FROM articles ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
