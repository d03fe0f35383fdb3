package business

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/townhubhq/townhub/internal/platform/dberr"
	"github.com/townhubhq/townhub/pkg/pagination"
)

const businessColumns = `id, ownerid, name, slug, category, description, address, city, website, phone, ispublished, createdat, updatedat`

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (repository *PostgresRepository) Create(ctx context.Context, b *Business) error {
	query := `
		INSERT INTO directory.business (id, ownerid, name, slug, category, description, address, city, website, phone, ispublished, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING createdat, updatedat
	`
	err := repository.db.QueryRow(ctx, query,
		b.ID, b.OwnerID, b.Name, b.Slug, b.Category, b.Description,
		b.Address, b.City, b.Website, b.Phone, b.IsPublished,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return dberr.Wrap(err, "create_business")
}

func (repository *PostgresRepository) FindByID(ctx context.Context, id string) (*Business, error) {
	query := `SELECT ` + businessColumns + ` FROM directory.business WHERE id = $1 AND deletedat IS NULL`
	return repository.scanOne(ctx, query, id)
}

func (repository *PostgresRepository) FindBySlug(ctx context.Context, slug string) (*Business, error) {
	query := `SELECT ` + businessColumns + ` FROM directory.business WHERE slug = $1 AND deletedat IS NULL`
	return repository.scanOne(ctx, query, slug)
}

func (repository *PostgresRepository) List(ctx context.Context, f Filter, params pagination.Params) ([]*Business, int64, error) {
	query := `SELECT ` + businessColumns + ` FROM directory.business WHERE deletedat IS NULL`
	countQuery := `SELECT count(*) FROM directory.business WHERE deletedat IS NULL`

	args := []any{}

	appendCondition := func(condition string, value any) {
		args = append(args, value)
		placeholder := " AND " + condition + " $" + strconv.Itoa(len(args))
		query += placeholder
		countQuery += placeholder
	}

	if f.Query != "" {
		searchTerm := "%" + f.Query + "%"
		args = append(args, searchTerm)
		clause := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR description ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += clause
		countQuery += clause
	}
	if f.City != "" {
		appendCondition("city ILIKE", f.City)
	}
	if f.Category != "" {
		appendCondition("category =", f.Category)
	}
	if f.OwnerID != "" {
		appendCondition("ownerid =", f.OwnerID)
	}

	var total int64
	if err := repository.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, dberr.Wrap(err, "count_businesses")
	}

	query += ` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, params.Limit, params.Offset())

	rows, err := repository.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, dberr.Wrap(err, "list_businesses")
	}
	defer rows.Close()

	businesses, err := collectBusinesses(rows)
	if err != nil {
		return nil, 0, err
	}

	return businesses, total, nil
}

func (repository *PostgresRepository) Update(ctx context.Context, b *Business) error {
	query := `
		UPDATE directory.business
		SET name = $2, slug = $3, category = $4, description = $5, address = $6,
		    city = $7, website = $8, phone = $9, ispublished = $10, updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL
		RETURNING updatedat
	`
	err := repository.db.QueryRow(ctx, query,
		b.ID, b.Name, b.Slug, b.Category, b.Description,
		b.Address, b.City, b.Website, b.Phone, b.IsPublished,
	).Scan(&b.UpdatedAt)
	return dberr.Wrap(err, "update_business")
}

func (repository *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE directory.business SET deletedat = NOW() WHERE id = $1 AND deletedat IS NULL`

	cmd, err := repository.db.Exec(ctx, query, id)
	if err != nil {
		return dberr.Wrap(err, "delete_business")
	}
	if cmd.RowsAffected() == 0 {
		return dberr.ErrNotFound
	}
	return nil
}

func (repository *PostgresRepository) OwnedResourceIDs(ctx context.Context, ownerID string) ([]string, error) {
	query := `SELECT id FROM directory.business WHERE ownerid = $1 AND deletedat IS NULL`

	rows, err := repository.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, dberr.Wrap(err, "list_owned_business_ids")
	}
	defer rows.Close()

	return collectIDs(rows)
}

// collectBusinesses drains a result set into entities. The rows.Err check
// matters: a connection dropped mid-stream otherwise reads as a short but
// valid result.
func collectBusinesses(rows pgx.Rows) ([]*Business, error) {
	var businesses []*Business
	for rows.Next() {
		b := &Business{}
		if err := rows.Scan(
			&b.ID, &b.OwnerID, &b.Name, &b.Slug, &b.Category, &b.Description,
			&b.Address, &b.City, &b.Website, &b.Phone, &b.IsPublished,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, dberr.Wrap(err, "scan_business")
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "read_businesses")
	}
	return businesses, nil
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Wrap(err, "scan_owned_business_id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "read_owned_business_ids")
	}
	return ids, nil
}

func (repository *PostgresRepository) scanOne(ctx context.Context, query string, arg any) (*Business, error) {
	b := &Business{}
	err := repository.db.QueryRow(ctx, query, arg).Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.Slug, &b.Category, &b.Description,
		&b.Address, &b.City, &b.Website, &b.Phone, &b.IsPublished,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "get_business")
	}
	return b, nil
}
