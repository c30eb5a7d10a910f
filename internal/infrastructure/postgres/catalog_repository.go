package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxDB is a DBTX that can open transactions. Satisfied by pgxpool.Pool.
type TxDB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// schema is applied statement by statement; the extended protocol rejects
// multi-statement strings.
// Payloads use json, not jsonb, so the stored text round-trips byte for byte
// and catalog versions computed after a reload match the seeded ones.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS countries (
		code          TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		official_name TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		position      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		country_code TEXT NOT NULL REFERENCES countries (code) ON DELETE CASCADE,
		position     INTEGER NOT NULL,
		video_id     TEXT NOT NULL,
		payload      JSON NOT NULL,
		PRIMARY KEY (country_code, video_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_country_position ON videos (country_code, position)`,
}

var videoColumns = []string{"country_code", "position", "video_id", "payload"}

// CatalogRepository implements repository.CatalogRepository using PostgreSQL.
type CatalogRepository struct {
	db TxDB
}

// Compile-time verification that CatalogRepository implements repository.CatalogRepository.
var _ repository.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository instance.
func NewCatalogRepository(db TxDB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// EnsureSchema creates the catalog tables if they do not exist.
func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// ReplaceAll swaps the persisted catalog for catalogs in one transaction.
// Readers see either the old catalog or the new one.
func (r *CatalogRepository) ReplaceAll(ctx context.Context, catalogs []*model.CountryCatalog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := r.replaceAll(ctx, tx, catalogs); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logging.FromContext(ctx).Warn("failed to roll back catalog replace", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit catalog replace: %w", err)
	}
	return nil
}

func (r *CatalogRepository) replaceAll(ctx context.Context, tx pgx.Tx, catalogs []*model.CountryCatalog) error {
	if _, err := tx.Exec(ctx, `DELETE FROM videos`); err != nil {
		return fmt.Errorf("failed to delete videos: %w", err)
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, metrics.TableVideos).Inc()

	if _, err := tx.Exec(ctx, `DELETE FROM countries`); err != nil {
		return fmt.Errorf("failed to delete countries: %w", err)
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, metrics.TableCountries).Inc()

	const insertCountry = `
		INSERT INTO countries (code, name, official_name, description, position)
		VALUES ($1, $2, $3, $4, $5)
	`

	var rows [][]any
	for i, c := range catalogs {
		_, err := tx.Exec(ctx, insertCountry,
			c.Country.Code,
			c.Country.Name,
			c.Country.OfficialName,
			c.Country.Description,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert country %s: %w", c.Country.Code, err)
		}
		metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableCountries).Inc()

		for pos, v := range c.Videos {
			rows = append(rows, []any{c.Country.Code, pos, v.ID, string(v.Payload)})
		}
	}

	if len(rows) == 0 {
		return nil
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"videos"}, videoColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy videos: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("failed to copy videos: copied %d of %d rows", n, len(rows))
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableVideos).Inc()

	return nil
}

// LoadAll reads the persisted catalog in seed order. Returns
// repository.ErrCatalogEmpty when nothing has been persisted yet.
func (r *CatalogRepository) LoadAll(ctx context.Context) ([]*model.CountryCatalog, error) {
	const countriesQuery = `
		SELECT code, name, official_name, description
		FROM countries
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, countriesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableCountries).Inc()

	var countries []model.Country
	for rows.Next() {
		var c model.Country
		if err := rows.Scan(&c.Code, &c.Name, &c.OfficialName, &c.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan country: %w", err)
		}
		countries = append(countries, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating countries: %w", err)
	}

	if len(countries) == 0 {
		return nil, repository.ErrCatalogEmpty
	}

	videos, err := r.loadVideos(ctx)
	if err != nil {
		return nil, err
	}

	catalogs := make([]*model.CountryCatalog, 0, len(countries))
	for _, c := range countries {
		catalog, dropped, err := model.NewCountryCatalog(c, videos[c.Code])
		if err != nil {
			return nil, fmt.Errorf("invalid persisted country %q: %w", c.Code, err)
		}
		if len(dropped) > 0 {
			logging.FromContext(ctx).Warn("persisted catalog contained duplicate videos",
				"country", c.Code,
				"dropped", dropped,
			)
		}
		catalogs = append(catalogs, catalog)
	}

	return catalogs, nil
}

func (r *CatalogRepository) loadVideos(ctx context.Context) (map[string][]model.VideoRecord, error) {
	const query = `
		SELECT country_code, video_id, payload
		FROM videos
		ORDER BY country_code, position
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableVideos).Inc()

	videos := make(map[string][]model.VideoRecord)
	for rows.Next() {
		var (
			code    string
			id      string
			payload []byte
		)
		if err := rows.Scan(&code, &id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos[code] = append(videos[code], model.VideoRecord{ID: id, Payload: json.RawMessage(payload)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating videos: %w", err)
	}

	return videos, nil
}
