package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toshokan/internal/catalog"
	"github.com/hitoshi/toshokan/internal/middleware"
	"github.com/hitoshi/toshokan/internal/model"
)

// CatalogServiceInterface は蔵書ハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListBooks(ctx context.Context) ([]*model.Book, error)
	GetBook(ctx context.Context, id string) (*model.Book, error)
	CreateBook(ctx context.Context, input catalog.CreateBookInput) (*model.Book, error)
	UpdateBook(ctx context.Context, id string, update *model.BookUpdate) (*model.Book, error)
	DeleteBook(ctx context.Context, id string) error
	ListAuthors(ctx context.Context) ([]*model.Author, error)
	CreateAuthor(ctx context.Context, name string) (*model.Author, error)
	ListCategories(ctx context.Context) ([]*model.Category, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
}

// OpenLoanLister は利用者が貸出中の蔵書ID一覧の取得インターフェース。
// rental.Serviceの部分集合として定義する。
type OpenLoanLister interface {
	ListOpenBookIDs(ctx context.Context, userID string) ([]string, error)
}

// BookHandler は蔵書カタログのHTTPハンドラー。
type BookHandler struct {
	service CatalogServiceInterface
	loans   OpenLoanLister
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service CatalogServiceInterface, loans OpenLoanLister) *BookHandler {
	return &BookHandler{
		service: service,
		loans:   loans,
	}
}

// --- リクエスト・レスポンス型 ---

type bookResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Year        int       `json:"year"`
	Description string    `json:"description"`
	Available   int       `json:"available"`
	AuthorID    *string   `json:"author_id"`
	CategoryID  *string   `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toBookResponse(book *model.Book) bookResponse {
	return bookResponse{
		ID:          book.ID,
		Title:       book.Title,
		Year:        book.Year,
		Description: book.Description,
		Available:   book.Available,
		AuthorID:    book.AuthorID,
		CategoryID:  book.CategoryID,
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
}

// bookListResponse は蔵書一覧のレスポンス。
// RentedBookIDsはリクエストした利用者が貸出中の蔵書ID。
// 一覧画面で「借りる」「返す」の表示を切り替えるために使う。
type bookListResponse struct {
	Books         []bookResponse `json:"books"`
	RentedBookIDs []string       `json:"rented_book_ids"`
}

type createBookRequest struct {
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	Description string  `json:"description"`
	Available   int     `json:"available"`
	AuthorID    *string `json:"author_id"`
	CategoryID  *string `json:"category_id"`
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Year        *int    `json:"year"`
	Description *string `json:"description"`
	Available   *int    `json:"available"`
	AuthorID    *string `json:"author_id"`
	CategoryID  *string `json:"category_id"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type nameResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListBooks は全蔵書と、リクエストした利用者が貸出中の蔵書IDを返す。
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	rentedIDs, err := h.loans.ListOpenBookIDs(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := bookListResponse{
		Books:         make([]bookResponse, 0, len(books)),
		RentedBookIDs: rentedIDs,
	}
	if resp.RentedBookIDs == nil {
		resp.RentedBookIDs = []string{}
	}
	for _, book := range books {
		resp.Books = append(resp.Books, toBookResponse(book))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetBook は蔵書詳細を返す。
// GET /api/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	book, err := h.service.GetBook(r.Context(), bookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toBookResponse(book))
}

// CreateBook は蔵書を登録する。管理者専用。
// POST /api/books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	book, err := h.service.CreateBook(r.Context(), catalog.CreateBookInput{
		Title:       req.Title,
		Year:        req.Year,
		Description: req.Description,
		Available:   req.Available,
		AuthorID:    req.AuthorID,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toBookResponse(book))
}

// UpdateBook は蔵書をフィールド単位で部分更新する。管理者専用。
// PATCH /api/books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	var req updateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), bookID, &model.BookUpdate{
		Title:       req.Title,
		Year:        req.Year,
		Description: req.Description,
		Available:   req.Available,
		AuthorID:    req.AuthorID,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toBookResponse(book))
}

// DeleteBook は蔵書を削除する。管理者専用。
// 貸出記録のある蔵書は削除できない。
// DELETE /api/books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	if err := h.service.DeleteBook(r.Context(), bookID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAuthors は著者一覧を返す。
// GET /api/authors
func (h *BookHandler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]nameResponse, 0, len(authors))
	for _, a := range authors {
		resp = append(resp, nameResponse{ID: a.ID, Name: a.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreateAuthor は著者を登録する。管理者専用。
// POST /api/authors
func (h *BookHandler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	author, err := h.service.CreateAuthor(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(nameResponse{ID: author.ID, Name: author.Name})
}

// ListCategories は分類一覧を返す。
// GET /api/categories
func (h *BookHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]nameResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, nameResponse{ID: c.ID, Name: c.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreateCategory は分類を登録する。管理者専用。
// POST /api/categories
func (h *BookHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	category, err := h.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(nameResponse{ID: category.ID, Name: category.Name})
}
