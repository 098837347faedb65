package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/toshokan/internal/model"
)

// PostgresAuthorRepo はPostgreSQLを使用した著者リポジトリ。
type PostgresAuthorRepo struct {
	db *sql.DB
}

// NewPostgresAuthorRepo はPostgresAuthorRepoを生成する。
func NewPostgresAuthorRepo(db *sql.DB) *PostgresAuthorRepo {
	return &PostgresAuthorRepo{db: db}
}

// FindByID は指定IDの著者を取得する。見つからない場合はnilを返す。
func (r *PostgresAuthorRepo) FindByID(ctx context.Context, id string) (*model.Author, error) {
	author := &model.Author{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM authors WHERE id = $1`,
		id,
	).Scan(&author.ID, &author.Name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}

	return author, nil
}

// List は全著者を名前順で返す。
func (r *PostgresAuthorRepo) List(ctx context.Context) ([]*model.Author, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM authors ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	var authors []*model.Author
	for rows.Next() {
		author := &model.Author{}
		if err := rows.Scan(&author.ID, &author.Name); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, author)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate authors: %w", err)
	}

	return authors, nil
}

// Create は著者を作成する。
func (r *PostgresAuthorRepo) Create(ctx context.Context, author *model.Author) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authors (id, name) VALUES ($1, $2)`,
		author.ID, author.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert author: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuthorRepository = (*PostgresAuthorRepo)(nil)
