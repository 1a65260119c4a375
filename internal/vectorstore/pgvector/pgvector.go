package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docchat/internal/config"
	"docchat/internal/models"
)

// Chunk is one row of the chunk table. Embedding holds a pgvector literal.
type Chunk struct {
	bun.BaseModel `bun:"alias:c"`
	ID            string            `bun:"id,pk"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     string            `bun:"embedding,notnull"`
}

type match struct {
	ID         string            `bun:"id"`
	Content    string            `bun:"content"`
	Metadata   map[string]string `bun:"metadata,type:jsonb"`
	Similarity float64           `bun:"similarity"`
}

// Store keeps chunks in a Postgres table with a pgvector column.
type Store struct {
	db    *bun.DB
	table string
	dims  int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens dsn with the named driver: "pgdriver" (bun's own), "pq" or "pgx"
func ConnectDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case config.DriverPGDriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
	case config.DriverPQ:
		return sql.Open("postgres", dsn)
	case config.DriverPGX:
		return sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("%w: unknown postgres driver %q", models.ErrConfig, driver)
	}
}

// New connects, makes sure the vector extension and the table exist
func New(ctx context.Context, cfg *config.VectorStoreConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, table: cfg.Collection, dims: cfg.Dimensions}
	if err := s.InitDB(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("driver", cfg.Driver).Str("table", s.table).Int("dimensions", s.dims).Msg("pgvector store ready")
	return s, nil
}

func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ? (
		id text PRIMARY KEY,
		content text NOT NULL,
		metadata jsonb NOT NULL DEFAULT '{}',
		embedding vector(?) NOT NULL
	)`, bun.Ident(s.table), bun.Safe(strconv.Itoa(s.dims)))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]Chunk, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) != s.dims {
			return fmt.Errorf("record %s: embedding dimension %d, table expects %d", r.ID, len(r.Embedding), s.dims)
		}
		meta := r.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		rows = append(rows, Chunk{ID: r.ID, Content: r.Content, Metadata: meta, Embedding: pgVector(r.Embedding)})
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("metadata = EXCLUDED.metadata").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Query orders by cosine distance; similarity is 1 - distance
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]models.Match, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("query embedding dimension %d, table expects %d", len(embedding), s.dims)
	}
	if k <= 0 {
		return nil, nil
	}
	vec := pgVector(embedding)

	var rows []match
	err := s.db.NewSelect().
		TableExpr("? AS c", bun.Ident(s.table)).
		ColumnExpr("c.id, c.content, c.metadata").
		ColumnExpr("1 - (c.embedding <=> ?::vector) AS similarity", vec).
		OrderExpr("c.embedding <=> ?::vector", vec).
		Limit(k).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	matches := make([]models.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, models.Match{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: float32(r.Similarity),
		})
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().TableExpr("?", bun.Ident(s.table)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Reset empties the chunk table
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE ?", bun.Ident(s.table)); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table, err)
	}
	return nil
}

// DropTable removes the chunk table altogether
func (s *Store) DropTable(ctx context.Context) error {
	_, err := s.db.NewDropTable().TableExpr("?", bun.Ident(s.table)).IfExists().Exec(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// pgVector formats a float32 slice as a pgvector literal, e.g. "[0.1,0.2,0.3]".
func pgVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
