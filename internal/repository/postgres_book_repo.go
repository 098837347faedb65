package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/toshokan/internal/model"
)

// pqForeignKeyViolation はPostgreSQLのforeign_key_violationエラーコード。
const pqForeignKeyViolation = "23503"

// PostgresBookRepo はPostgreSQLを使用した蔵書リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	book := &model.Book{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, year, description, available, author_id, category_id, created_at, updated_at
		 FROM books WHERE id = $1`,
		id,
	).Scan(&book.ID, &book.Title, &book.Year, &book.Description, &book.Available, &book.AuthorID, &book.CategoryID, &book.CreatedAt, &book.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}

	return book, nil
}

// List は全蔵書をタイトル順で返す。
func (r *PostgresBookRepo) List(ctx context.Context) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, year, description, available, author_id, category_id, created_at, updated_at
		 FROM books ORDER BY title`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		book := &model.Book{}
		if err := rows.Scan(&book.ID, &book.Title, &book.Year, &book.Description, &book.Available, &book.AuthorID, &book.CategoryID, &book.CreatedAt, &book.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}

	return books, nil
}

// Create は蔵書を作成する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, title, year, description, available, author_id, category_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		book.ID, book.Title, book.Year, book.Description, book.Available, book.AuthorID, book.CategoryID, book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

// Update は蔵書をフィールド単位で部分更新する。
// nilフィールドは変更しない。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresBookRepo) Update(ctx context.Context, id string, update *model.BookUpdate) error {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{id}

	addSet := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		addSet("title", *update.Title)
	}
	if update.Year != nil {
		addSet("year", *update.Year)
	}
	if update.Description != nil {
		addSet("description", *update.Description)
	}
	if update.Available != nil {
		addSet("available", *update.Available)
	}
	if update.AuthorID != nil {
		addSet("author_id", *update.AuthorID)
	}
	if update.CategoryID != nil {
		addSet("category_id", *update.CategoryID)
	}

	query := fmt.Sprintf(`UPDATE books SET %s WHERE id = $1`, strings.Join(setClauses, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は蔵書を削除する。対象が存在しない場合はErrNotFoundを、
// 貸出記録が参照している場合はErrBookReferencedを返す。
func (r *PostgresBookRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM books WHERE id = $1`,
		id,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
			return ErrBookReferenced
		}
		return fmt.Errorf("failed to delete book: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)
