package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toshokan/internal/middleware"
	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
)

// RentalServiceInterface は貸出ハンドラーが必要とするサービスインターフェース。
type RentalServiceInterface interface {
	// Toggle は貸出中でなければ貸出、貸出中なら返却を行う。
	Toggle(ctx context.Context, userID, bookID string) (model.RentalResult, error)
	// ListLedger は全利用者の貸出記録を返す。
	ListLedger(ctx context.Context) ([]repository.HistoryWithDetails, error)
}

// RentalHandler は貸出・返却のHTTPハンドラー。
type RentalHandler struct {
	service RentalServiceInterface
}

// NewRentalHandler はRentalHandlerを生成する。
func NewRentalHandler(service RentalServiceInterface) *RentalHandler {
	return &RentalHandler{service: service}
}

// --- レスポンス型 ---

type rentalToggleResponse struct {
	BookID string `json:"book_id"`
	Result string `json:"result"` // "loaned" または "returned"
}

// ledgerEntryResponse は貸出台帳の1エントリ。
type ledgerEntryResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	UserEmail  string     `json:"user_email"`
	UserName   string     `json:"user_name"`
	BookID     string     `json:"book_id"`
	BookTitle  string     `json:"book_title"`
	LoanedAt   time.Time  `json:"loaned_at"`
	ReturnedAt *time.Time `json:"returned_at"`
	Returned   bool       `json:"returned"`
}

// Toggle は蔵書の貸出状態を切り替える。
// 貸出中でなければ貸出、貸出中なら返却として記録される。
// POST /api/books/{id}/rental
func (h *RentalHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	bookID := chi.URLParam(r, "id")

	result, err := h.service.Toggle(r.Context(), userID, bookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rentalToggleResponse{
		BookID: bookID,
		Result: string(result),
	})
}

// ListLedger は全利用者の貸出台帳を返す。管理者専用。
// 貸出中の記録が先、その中では貸出日時の新しい順に並ぶ。
// GET /api/rentals
func (h *RentalHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListLedger(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			ID:         e.History.ID,
			UserID:     e.History.UserID,
			UserEmail:  e.UserEmail,
			UserName:   e.UserName,
			BookID:     e.History.BookID,
			BookTitle:  e.BookTitle,
			LoanedAt:   e.History.LoanedAt,
			ReturnedAt: e.History.ReturnedAt,
			Returned:   e.History.Returned,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
