// Package catalog は蔵書カタログ管理のドメインロジックを提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
	"github.com/hitoshi/toshokan/internal/security"
)

// CreateBookInput は蔵書登録の入力を表す。
type CreateBookInput struct {
	Title       string
	Year        int
	Description string // 未サニタイズのHTML
	Available   int
	AuthorID    *string
	CategoryID  *string
}

// Service は蔵書カタログ管理のサービス層。
// 蔵書のCRUDと著者・分類の管理を提供する。
// カタログを変更する操作は管理者のみが呼び出せる（ハンドラー層でガードする）。
type Service struct {
	bookRepo     repository.BookRepository
	authorRepo   repository.AuthorRepository
	categoryRepo repository.CategoryRepository
	sanitizer    security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	bookRepo repository.BookRepository,
	authorRepo repository.AuthorRepository,
	categoryRepo repository.CategoryRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		bookRepo:     bookRepo,
		authorRepo:   authorRepo,
		categoryRepo: categoryRepo,
		sanitizer:    sanitizer,
	}
}

// ListBooks は全蔵書をタイトル順で返す。
func (s *Service) ListBooks(ctx context.Context) ([]*model.Book, error) {
	books, err := s.bookRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("蔵書一覧の取得に失敗しました: %w", err)
	}
	return books, nil
}

// GetBook は指定IDの蔵書を返す。
// 見つからない場合はBOOK_NOT_FOUNDを返す。
func (s *Service) GetBook(ctx context.Context, id string) (*model.Book, error) {
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("蔵書の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(id)
	}
	return book, nil
}

// CreateBook は蔵書を登録する。IDはストア側で採番せず、ここでUUIDを割り当てる。
// 紹介文はサニタイズしてから保存する。
func (s *Service) CreateBook(ctx context.Context, input CreateBookInput) (*model.Book, error) {
	if input.Title == "" {
		return nil, model.NewValidationFailedError("タイトルは必須です")
	}
	if input.Available < 0 {
		return nil, model.NewValidationFailedError("冊数は0以上にしてください")
	}

	if err := s.validateReferences(ctx, input.AuthorID, input.CategoryID); err != nil {
		return nil, err
	}

	now := time.Now()
	book := &model.Book{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Year:        input.Year,
		Description: s.sanitizer.Sanitize(input.Description),
		Available:   input.Available,
		AuthorID:    input.AuthorID,
		CategoryID:  input.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("蔵書の登録に失敗しました: %w", err)
	}

	slog.Info("book created",
		slog.String("book_id", book.ID),
		slog.String("title", book.Title),
	)

	return book, nil
}

// UpdateBook は蔵書をフィールド単位で部分更新する。
// nilフィールドは変更しない。見つからない場合はBOOK_NOT_FOUNDを返す。
func (s *Service) UpdateBook(ctx context.Context, id string, update *model.BookUpdate) (*model.Book, error) {
	if update.Title != nil && *update.Title == "" {
		return nil, model.NewValidationFailedError("タイトルは空にできません")
	}
	if update.Available != nil && *update.Available < 0 {
		return nil, model.NewValidationFailedError("冊数は0以上にしてください")
	}

	if err := s.validateReferences(ctx, update.AuthorID, update.CategoryID); err != nil {
		return nil, err
	}

	if update.Description != nil {
		sanitized := s.sanitizer.Sanitize(*update.Description)
		update.Description = &sanitized
	}

	if err := s.bookRepo.Update(ctx, id, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewBookNotFoundError(id)
		}
		return nil, fmt.Errorf("蔵書の更新に失敗しました: %w", err)
	}

	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("更新後の蔵書の取得に失敗しました: %w", err)
	}

	slog.Info("book updated", slog.String("book_id", id))

	return book, nil
}

// DeleteBook は蔵書を削除する。
// 貸出記録が参照している蔵書は削除できない（BOOK_HAS_HISTORY）。
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	if err := s.bookRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewBookNotFoundError(id)
		}
		if errors.Is(err, repository.ErrBookReferenced) {
			return model.NewBookHasHistoryError(id)
		}
		return fmt.Errorf("蔵書の削除に失敗しました: %w", err)
	}

	slog.Info("book deleted", slog.String("book_id", id))

	return nil
}

// ListAuthors は全著者を名前順で返す。
func (s *Service) ListAuthors(ctx context.Context) ([]*model.Author, error) {
	authors, err := s.authorRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("著者一覧の取得に失敗しました: %w", err)
	}
	return authors, nil
}

// CreateAuthor は著者を登録する。
func (s *Service) CreateAuthor(ctx context.Context, name string) (*model.Author, error) {
	if name == "" {
		return nil, model.NewValidationFailedError("著者名は必須です")
	}

	author := &model.Author{
		ID:   uuid.New().String(),
		Name: name,
	}
	if err := s.authorRepo.Create(ctx, author); err != nil {
		return nil, fmt.Errorf("著者の登録に失敗しました: %w", err)
	}

	return author, nil
}

// ListCategories は全分類を名前順で返す。
func (s *Service) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("分類一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// CreateCategory は分類を登録する。
func (s *Service) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	if name == "" {
		return nil, model.NewValidationFailedError("分類名は必須です")
	}

	category := &model.Category{
		ID:   uuid.New().String(),
		Name: name,
	}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("分類の登録に失敗しました: %w", err)
	}

	return category, nil
}

// validateReferences は著者・分類への参照が実在することを検証する。
func (s *Service) validateReferences(ctx context.Context, authorID, categoryID *string) error {
	if authorID != nil {
		author, err := s.authorRepo.FindByID(ctx, *authorID)
		if err != nil {
			return fmt.Errorf("著者の取得に失敗しました: %w", err)
		}
		if author == nil {
			return model.NewAuthorNotFoundError(*authorID)
		}
	}
	if categoryID != nil {
		category, err := s.categoryRepo.FindByID(ctx, *categoryID)
		if err != nil {
			return fmt.Errorf("分類の取得に失敗しました: %w", err)
		}
		if category == nil {
			return model.NewCategoryNotFoundError(*categoryID)
		}
	}
	return nil
}
