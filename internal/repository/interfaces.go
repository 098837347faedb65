// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/toshokan/internal/model"
)

// 永続化層のセンチネルエラー。
// サービス層はerrors.Isで判定し、APIErrorに変換する。
var (
	// ErrDuplicateEmail はメールアドレスのユニーク制約違反を示す。
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrBookUnavailable は貸出可能冊数が0の蔵書への貸出を示す。
	ErrBookUnavailable = errors.New("book unavailable")
	// ErrOpenLoanConflict は同一(user, book)の貸出中レコード重複を示す。
	// uq_histories_open部分ユニークインデックス違反にマッピングされる。
	ErrOpenLoanConflict = errors.New("open loan already exists")
	// ErrBookReferenced は貸出記録が参照している蔵書の削除を示す。
	ErrBookReferenced = errors.New("book referenced by histories")
	// ErrNotFound は対象レコードの不存在を示す。
	ErrNotFound = errors.New("record not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuthorRepository は著者データの永続化インターフェース。
type AuthorRepository interface {
	// FindByID は指定IDの著者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Author, error)
	// List は全著者を名前順で返す。
	List(ctx context.Context) ([]*model.Author, error)
	// Create は著者を作成する。
	Create(ctx context.Context, author *model.Author) error
}

// CategoryRepository は分類データの永続化インターフェース。
type CategoryRepository interface {
	// FindByID は指定IDの分類を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)
	// List は全分類を名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)
	// Create は分類を作成する。
	Create(ctx context.Context, category *model.Category) error
}

// BookRepository は蔵書データの永続化インターフェース。
// 貸出可能冊数の増減はHistoryRepositoryのLoan/Returnのみが行う。
type BookRepository interface {
	// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// List は全蔵書をタイトル順で返す。
	List(ctx context.Context) ([]*model.Book, error)

	// Create は蔵書を作成する。
	Create(ctx context.Context, book *model.Book) error

	// Update は蔵書をフィールド単位で部分更新する。
	// nilフィールドは変更しない。対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id string, update *model.BookUpdate) error

	// Delete は蔵書を削除する。対象が存在しない場合はErrNotFoundを、
	// 貸出記録が参照している場合はErrBookReferencedを返す。
	Delete(ctx context.Context, id string) error
}

// HistoryWithDetails は貸出記録にユーザーと蔵書の表示情報を結合した構造体。
// 貸出台帳の一覧表示に使用する。
type HistoryWithDetails struct {
	model.History
	UserEmail string
	UserName  string // 姓・名を連結した表示名
	BookTitle string
}

// HistoryRepository は貸出記録の永続化インターフェース。
// LoanとReturnは単一トランザクション内で貸出記録と蔵書の
// 貸出可能冊数を同時に更新し、チェック後更新の競合を排除する。
type HistoryRepository interface {
	// FindOpenByUserAndBook は指定(user, book)の貸出中レコードを取得する。
	// 見つからない場合はnilを返す。
	FindOpenByUserAndBook(ctx context.Context, userID, bookID string) (*model.History, error)

	// ListOpenBookIDsByUser は指定ユーザーが貸出中の蔵書IDの一覧を返す。
	ListOpenBookIDsByUser(ctx context.Context, userID string) ([]string, error)

	// ListAllWithDetails は全貸出記録を貸出中が先、次に貸出日時の
	// 降順でユーザー・蔵書情報付きで返す。
	ListAllWithDetails(ctx context.Context) ([]HistoryWithDetails, error)

	// Loan は貸出を作成する。単一トランザクションで蔵書の貸出可能冊数を
	// 条件付きでデクリメントし、貸出記録をINSERTする。
	// 冊数が0の場合はErrBookUnavailableを、貸出中レコードが既に存在する
	// 場合はErrOpenLoanConflictを返す。
	Loan(ctx context.Context, history *model.History) error

	// Return は貸出を返却済みに更新する。単一トランザクションで貸出記録を
	// 閉じ、蔵書の貸出可能冊数をインクリメントする。
	// 対象の貸出中レコードが存在しない場合はErrNotFoundを返す。
	Return(ctx context.Context, historyID, bookID string, returnedAt time.Time) error
}
