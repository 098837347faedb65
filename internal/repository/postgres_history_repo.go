package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/toshokan/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した貸出記録リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// FindOpenByUserAndBook は指定(user, book)の貸出中レコードを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresHistoryRepo) FindOpenByUserAndBook(ctx context.Context, userID, bookID string) (*model.History, error) {
	history := &model.History{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, book_id, loaned_at, returned_at, returned
		 FROM histories
		 WHERE user_id = $1 AND book_id = $2 AND NOT returned`,
		userID, bookID,
	).Scan(&history.ID, &history.UserID, &history.BookID, &history.LoanedAt, &history.ReturnedAt, &history.Returned)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open loan: %w", err)
	}

	return history, nil
}

// ListOpenBookIDsByUser は指定ユーザーが貸出中の蔵書IDの一覧を返す。
func (r *PostgresHistoryRepo) ListOpenBookIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT book_id FROM histories WHERE user_id = $1 AND NOT returned ORDER BY loaned_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open loans: %w", err)
	}
	defer rows.Close()

	var bookIDs []string
	for rows.Next() {
		var bookID string
		if err := rows.Scan(&bookID); err != nil {
			return nil, fmt.Errorf("failed to scan book ID: %w", err)
		}
		bookIDs = append(bookIDs, bookID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open loans: %w", err)
	}

	return bookIDs, nil
}

// ListAllWithDetails は全貸出記録を貸出中が先、次に貸出日時の降順で
// ユーザー・蔵書情報付きで返す。
func (r *PostgresHistoryRepo) ListAllWithDetails(ctx context.Context) ([]HistoryWithDetails, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT h.id, h.user_id, h.book_id, h.loaned_at, h.returned_at, h.returned,
		        u.email, TRIM(u.surname || ' ' || u.name), b.title
		 FROM histories h
		 JOIN users u ON u.id = h.user_id
		 JOIN books b ON b.id = h.book_id
		 ORDER BY h.returned ASC, h.loaned_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}
	defer rows.Close()

	var results []HistoryWithDetails
	for rows.Next() {
		var row HistoryWithDetails
		if err := rows.Scan(&row.ID, &row.UserID, &row.BookID, &row.LoanedAt, &row.ReturnedAt, &row.Returned,
			&row.UserEmail, &row.UserName, &row.BookTitle); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate histories: %w", err)
	}

	return results, nil
}

// Loan は貸出を作成する。単一トランザクションで蔵書の貸出可能冊数を
// 条件付きでデクリメントし、貸出記録をINSERTする。
// 冊数が0の場合はErrBookUnavailableを、貸出中レコードが既に存在する
// 場合はErrOpenLoanConflictを返す。
func (r *PostgresHistoryRepo) Loan(ctx context.Context, history *model.History) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 冊数が残っている場合のみデクリメントする。
	// 0件更新は貸出不可を意味する。
	result, err := tx.ExecContext(ctx,
		`UPDATE books SET available = available - 1, updated_at = now()
		 WHERE id = $1 AND available > 0`,
		history.BookID,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement availability: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrBookUnavailable
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO histories (id, user_id, book_id, loaned_at, returned)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		history.ID, history.UserID, history.BookID, history.LoanedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrOpenLoanConflict
		}
		return fmt.Errorf("failed to insert history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Return は貸出を返却済みに更新する。単一トランザクションで貸出記録を
// 閉じ、蔵書の貸出可能冊数をインクリメントする。
// 対象の貸出中レコードが存在しない場合はErrNotFoundを返す。
func (r *PostgresHistoryRepo) Return(ctx context.Context, historyID, bookID string, returnedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 貸出中の行のみ閉じる。0件更新は二重返却を意味する。
	result, err := tx.ExecContext(ctx,
		`UPDATE histories SET returned = TRUE, returned_at = $2
		 WHERE id = $1 AND NOT returned`,
		historyID, returnedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE books SET available = available + 1, updated_at = now() WHERE id = $1`,
		bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment availability: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
