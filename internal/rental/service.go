// Package rental は貸出・返却のドメインロジックを提供する。
package rental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
)

// MetricsRecorder は貸出メトリクス収集のインターフェース。
// metrics.Collectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordLoan()
	RecordReturn()
	RecordLoanRejected()
}

// Service は貸出管理のサービス層。
// 貸出トグル、貸出台帳の取得、利用者自身の貸出中一覧を提供する。
type Service struct {
	bookRepo    repository.BookRepository
	historyRepo repository.HistoryRepository
	metrics     MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewService(
	bookRepo repository.BookRepository,
	historyRepo repository.HistoryRepository,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		bookRepo:    bookRepo,
		historyRepo: historyRepo,
		metrics:     metrics,
	}
}

// toggleAttempts は貸出中レコードの挿入競合時の再試行上限。
const toggleAttempts = 2

// Toggle は指定(user, book)の貸出状態を切り替える。
// 貸出中レコードがあれば返却し、なければ新規貸出を作成する。
// 貸出と返却はそれぞれ単一トランザクションで蔵書の貸出可能冊数と
// 同時に更新されるため、チェック後更新の競合で冊数が壊れることはない。
// 蔵書が存在しない場合はBOOK_NOT_FOUNDを、冊数が0の場合は
// BOOK_UNAVAILABLEを返す。
// 同一(user, book)のトグルが同時に実行され貸出中レコードの部分
// ユニーク制約に衝突した場合は一度だけやり直す。やり直し時には
// 先行した貸出が見えるため返却として処理される。
func (s *Service) Toggle(ctx context.Context, userID, bookID string) (model.RentalResult, error) {
	var lastErr error
	for attempt := 0; attempt < toggleAttempts; attempt++ {
		result, err := s.toggleOnce(ctx, userID, bookID)
		if errors.Is(err, repository.ErrOpenLoanConflict) {
			slog.Warn("loan conflict, retrying toggle",
				slog.String("user_id", userID),
				slog.String("book_id", bookID),
			)
			lastErr = err
			continue
		}
		return result, err
	}
	slog.Warn("loan conflict persisted after retry",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.String("error", lastErr.Error()),
	)
	return "", model.NewRentalConflictError(bookID)
}

func (s *Service) toggleOnce(ctx context.Context, userID, bookID string) (model.RentalResult, error) {
	book, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return "", fmt.Errorf("蔵書の取得に失敗しました: %w", err)
	}
	if book == nil {
		return "", model.NewBookNotFoundError(bookID)
	}

	open, err := s.historyRepo.FindOpenByUserAndBook(ctx, userID, bookID)
	if err != nil {
		return "", fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}

	now := time.Now()

	if open != nil {
		// 返却: 貸出中レコードを閉じて冊数を戻す
		if err := s.historyRepo.Return(ctx, open.ID, bookID, now); err != nil {
			return "", fmt.Errorf("返却処理に失敗しました: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecordReturn()
		}
		slog.Info("book returned",
			slog.String("user_id", userID),
			slog.String("book_id", bookID),
			slog.String("history_id", open.ID),
		)
		return model.RentalResultReturned, nil
	}

	// 新規貸出
	history := &model.History{
		ID:       uuid.New().String(),
		UserID:   userID,
		BookID:   bookID,
		LoanedAt: now,
		Returned: false,
	}
	if err := s.historyRepo.Loan(ctx, history); err != nil {
		if errors.Is(err, repository.ErrBookUnavailable) {
			if s.metrics != nil {
				s.metrics.RecordLoanRejected()
			}
			slog.Warn("loan rejected: no copies available",
				slog.String("user_id", userID),
				slog.String("book_id", bookID),
			)
			return "", model.NewBookUnavailableError(bookID)
		}
		return "", fmt.Errorf("貸出処理に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLoan()
	}
	slog.Info("book loaned",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.String("history_id", history.ID),
	)
	return model.RentalResultLoaned, nil
}

// ListLedger は全貸出記録を貸出中が先、次に貸出日時の降順で返す。
// 管理者向けの貸出台帳表示に使用する。
func (s *Service) ListLedger(ctx context.Context) ([]repository.HistoryWithDetails, error) {
	rows, err := s.historyRepo.ListAllWithDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("貸出台帳の取得に失敗しました: %w", err)
	}
	return rows, nil
}

// ListOpenBookIDs は指定ユーザーが貸出中の蔵書IDの一覧を返す。
func (s *Service) ListOpenBookIDs(ctx context.Context, userID string) ([]string, error) {
	bookIDs, err := s.historyRepo.ListOpenBookIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("貸出中一覧の取得に失敗しました: %w", err)
	}
	return bookIDs, nil
}
