package rental

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
)

// --- フェイク ---

// fakeStore は蔵書と貸出記録をメモリ上で保持し、
// Postgres実装と同じ原子性セマンティクスを再現する。
type fakeStore struct {
	books     map[string]*model.Book
	histories map[string]*model.History // history ID -> record
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:     map[string]*model.Book{},
		histories: map[string]*model.History{},
	}
}

func (f *fakeStore) addBook(id string, available int) {
	f.books[id] = &model.Book{ID: id, Title: "テスト蔵書", Available: available}
}

func (f *fakeStore) openCount(userID, bookID string) int {
	count := 0
	for _, h := range f.histories {
		if h.UserID == userID && h.BookID == bookID && !h.Returned {
			count++
		}
	}
	return count
}

// fakeBookRepo はBookRepositoryのフェイク実装。
type fakeBookRepo struct {
	store *fakeStore
}

func (f *fakeBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	return f.store.books[id], nil
}
func (f *fakeBookRepo) List(ctx context.Context) ([]*model.Book, error) {
	return nil, nil
}
func (f *fakeBookRepo) Create(ctx context.Context, book *model.Book) error {
	f.store.books[book.ID] = book
	return nil
}
func (f *fakeBookRepo) Update(ctx context.Context, id string, update *model.BookUpdate) error {
	return nil
}
func (f *fakeBookRepo) Delete(ctx context.Context, id string) error {
	return nil
}

// fakeHistoryRepo はHistoryRepositoryのフェイク実装。
// LoanとReturnはPostgres実装と同様に冊数と貸出記録を不可分に更新する。
type fakeHistoryRepo struct {
	store *fakeStore
}

func (f *fakeHistoryRepo) FindOpenByUserAndBook(ctx context.Context, userID, bookID string) (*model.History, error) {
	for _, h := range f.store.histories {
		if h.UserID == userID && h.BookID == bookID && !h.Returned {
			return h, nil
		}
	}
	return nil, nil
}

func (f *fakeHistoryRepo) ListOpenBookIDsByUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	for _, h := range f.store.histories {
		if h.UserID == userID && !h.Returned {
			ids = append(ids, h.BookID)
		}
	}
	return ids, nil
}

func (f *fakeHistoryRepo) ListAllWithDetails(ctx context.Context) ([]repository.HistoryWithDetails, error) {
	var rows []repository.HistoryWithDetails
	for _, h := range f.store.histories {
		rows = append(rows, repository.HistoryWithDetails{History: *h})
	}
	return rows, nil
}

func (f *fakeHistoryRepo) Loan(ctx context.Context, history *model.History) error {
	book := f.store.books[history.BookID]
	if book == nil || book.Available <= 0 {
		return repository.ErrBookUnavailable
	}
	if f.store.openCount(history.UserID, history.BookID) > 0 {
		return repository.ErrOpenLoanConflict
	}
	book.Available--
	copied := *history
	f.store.histories[history.ID] = &copied
	return nil
}

func (f *fakeHistoryRepo) Return(ctx context.Context, historyID, bookID string, returnedAt time.Time) error {
	h, ok := f.store.histories[historyID]
	if !ok || h.Returned {
		return repository.ErrNotFound
	}
	h.Returned = true
	h.ReturnedAt = &returnedAt
	f.store.books[bookID].Available++
	return nil
}

// fakeMetrics はMetricsRecorderのフェイク実装。
type fakeMetrics struct {
	loans    int
	returns  int
	rejected int
}

func (f *fakeMetrics) RecordLoan()         { f.loans++ }
func (f *fakeMetrics) RecordReturn()       { f.returns++ }
func (f *fakeMetrics) RecordLoanRejected() { f.rejected++ }

func newTestService(store *fakeStore, metrics MetricsRecorder) *Service {
	return NewService(&fakeBookRepo{store: store}, &fakeHistoryRepo{store: store}, metrics)
}

// --- Toggle テスト ---

// TestService_Toggle_LoanThenReturn は貸出→返却で冊数が元に戻ることを検証する。
// シナリオ: 冊数1の蔵書をアリスが借りて返す。
func TestService_Toggle_LoanThenReturn(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-dune", 1)
	svc := newTestService(store, nil)
	ctx := context.Background()

	result, err := svc.Toggle(ctx, "user-alice", "book-dune")
	if err != nil {
		t.Fatalf("1回目のToggleがエラー: %v", err)
	}
	if result != model.RentalResultLoaned {
		t.Errorf("result = %q, want %q", result, model.RentalResultLoaned)
	}
	if got := store.books["book-dune"].Available; got != 0 {
		t.Errorf("貸出後のavailable = %d, want 0", got)
	}
	if got := store.openCount("user-alice", "book-dune"); got != 1 {
		t.Errorf("貸出中レコード数 = %d, want 1", got)
	}

	result, err = svc.Toggle(ctx, "user-alice", "book-dune")
	if err != nil {
		t.Fatalf("2回目のToggleがエラー: %v", err)
	}
	if result != model.RentalResultReturned {
		t.Errorf("result = %q, want %q", result, model.RentalResultReturned)
	}
	if got := store.books["book-dune"].Available; got != 1 {
		t.Errorf("返却後のavailable = %d, want 1", got)
	}
	if got := store.openCount("user-alice", "book-dune"); got != 0 {
		t.Errorf("返却後の貸出中レコード数 = %d, want 0", got)
	}
}

// TestService_Toggle_EvenCallsRestoreAvailability は偶数回のToggleで
// 冊数が初期値に戻り、貸出中レコードが残らないことを検証する。
func TestService_Toggle_EvenCallsRestoreAvailability(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 3)
	svc := newTestService(store, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := svc.Toggle(ctx, "user-1", "book-1"); err != nil {
			t.Fatalf("%d回目のToggleがエラー: %v", i+1, err)
		}
		if got := store.openCount("user-1", "book-1"); got > 1 {
			t.Fatalf("貸出中レコードが%d件ある（最大1件のはず）", got)
		}
	}

	if got := store.books["book-1"].Available; got != 3 {
		t.Errorf("偶数回Toggle後のavailable = %d, want 3", got)
	}
	if got := store.openCount("user-1", "book-1"); got != 0 {
		t.Errorf("偶数回Toggle後の貸出中レコード数 = %d, want 0", got)
	}
}

func TestService_Toggle_BookNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)

	_, err := svc.Toggle(context.Background(), "user-1", "missing-book")
	if err == nil {
		t.Fatal("expected error for missing book")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeBookNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeBookNotFound)
	}
}

// TestService_Toggle_Unavailable は冊数0の蔵書への貸出が拒否されることを検証する。
// 冊数は負にならない。
func TestService_Toggle_Unavailable(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 0)
	metrics := &fakeMetrics{}
	svc := newTestService(store, metrics)

	_, err := svc.Toggle(context.Background(), "user-1", "book-1")
	if err == nil {
		t.Fatal("expected error for unavailable book")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeBookUnavailable {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeBookUnavailable)
	}
	if got := store.books["book-1"].Available; got != 0 {
		t.Errorf("available = %d, want 0（負になってはいけない）", got)
	}
	if metrics.rejected != 1 {
		t.Errorf("rejected metric = %d, want 1", metrics.rejected)
	}
}

// TestService_Toggle_TwoUsersShareOneCopy は別ユーザーの貸出が
// 同じ冊数プールを共有することを検証する。
func TestService_Toggle_TwoUsersShareOneCopy(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 1)
	svc := newTestService(store, nil)
	ctx := context.Background()

	if _, err := svc.Toggle(ctx, "user-alice", "book-1"); err != nil {
		t.Fatalf("アリスの貸出がエラー: %v", err)
	}

	// 在庫が尽きているためボブは借りられない
	_, err := svc.Toggle(ctx, "user-bob", "book-1")
	if err == nil {
		t.Fatal("expected error: no copies left for second user")
	}

	// アリスが返却するとボブが借りられる
	if _, err := svc.Toggle(ctx, "user-alice", "book-1"); err != nil {
		t.Fatalf("アリスの返却がエラー: %v", err)
	}
	result, err := svc.Toggle(ctx, "user-bob", "book-1")
	if err != nil {
		t.Fatalf("返却後のボブの貸出がエラー: %v", err)
	}
	if result != model.RentalResultLoaned {
		t.Errorf("result = %q, want %q", result, model.RentalResultLoaned)
	}
}

// staleHistoryRepo は同一(user, book)の同時トグル競合を再現する。
// 最初のFindOpenByUserAndBookだけ貸出中レコードが見えない古い状態を返し、
// 以降はストアの実状態に委譲する。
type staleHistoryRepo struct {
	fakeHistoryRepo
	staleReads int
}

func (r *staleHistoryRepo) FindOpenByUserAndBook(ctx context.Context, userID, bookID string) (*model.History, error) {
	if r.staleReads > 0 {
		r.staleReads--
		return nil, nil
	}
	return r.fakeHistoryRepo.FindOpenByUserAndBook(ctx, userID, bookID)
}

// TestService_Toggle_ConflictRetriesAsReturn は貸出中レコードの挿入競合時に
// トグルをやり直し、先行した貸出を返却として処理することを検証する。
// シナリオ: 同一ユーザーの二重クリックで片方の貸出が先に成立している。
func TestService_Toggle_ConflictRetriesAsReturn(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 2)
	now := time.Now()
	store.histories["hist-race"] = &model.History{
		ID:       "hist-race",
		UserID:   "user-1",
		BookID:   "book-1",
		LoanedAt: now,
	}
	store.books["book-1"].Available = 1

	histRepo := &staleHistoryRepo{
		fakeHistoryRepo: fakeHistoryRepo{store: store},
		staleReads:      1,
	}
	svc := NewService(&fakeBookRepo{store: store}, histRepo, nil)

	result, err := svc.Toggle(context.Background(), "user-1", "book-1")
	if err != nil {
		t.Fatalf("競合後のToggleがエラー: %v", err)
	}
	if result != model.RentalResultReturned {
		t.Errorf("result = %q, want %q", result, model.RentalResultReturned)
	}
	if got := store.openCount("user-1", "book-1"); got != 0 {
		t.Errorf("貸出中レコード数 = %d, want 0", got)
	}
	if got := store.books["book-1"].Available; got != 2 {
		t.Errorf("available = %d, want 2", got)
	}
}

// conflictHistoryRepo は貸出中レコードの挿入が常に競合する状態を再現する。
type conflictHistoryRepo struct {
	fakeHistoryRepo
}

func (r *conflictHistoryRepo) FindOpenByUserAndBook(ctx context.Context, userID, bookID string) (*model.History, error) {
	return nil, nil
}

func (r *conflictHistoryRepo) Loan(ctx context.Context, history *model.History) error {
	return repository.ErrOpenLoanConflict
}

// TestService_Toggle_PersistentConflictReturnsAPIError は競合が再試行後も
// 解消しない場合にRENTAL_CONFLICTのAPIErrorを返すことを検証する。
// 生のエラーのまま伝搬すると500として扱われてしまう。
func TestService_Toggle_PersistentConflictReturnsAPIError(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 1)
	histRepo := &conflictHistoryRepo{fakeHistoryRepo: fakeHistoryRepo{store: store}}
	svc := NewService(&fakeBookRepo{store: store}, histRepo, nil)

	_, err := svc.Toggle(context.Background(), "user-1", "book-1")
	if err == nil {
		t.Fatal("expected error for persistent loan conflict")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("エラーがAPIErrorではない: %T %v", err, err)
	}
	if apiErr.Code != model.ErrCodeRentalConflict {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeRentalConflict)
	}
}

func TestService_Toggle_RecordsMetrics(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 1)
	metrics := &fakeMetrics{}
	svc := newTestService(store, metrics)
	ctx := context.Background()

	if _, err := svc.Toggle(ctx, "user-1", "book-1"); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if _, err := svc.Toggle(ctx, "user-1", "book-1"); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	if metrics.loans != 1 {
		t.Errorf("loans metric = %d, want 1", metrics.loans)
	}
	if metrics.returns != 1 {
		t.Errorf("returns metric = %d, want 1", metrics.returns)
	}
}

// --- 一覧テスト ---

func TestService_ListOpenBookIDs(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 1)
	store.addBook("book-2", 1)
	svc := newTestService(store, nil)
	ctx := context.Background()

	if _, err := svc.Toggle(ctx, "user-1", "book-1"); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if _, err := svc.Toggle(ctx, "user-1", "book-2"); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	ids, err := svc.ListOpenBookIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListOpenBookIDs returned error: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("open book IDs length = %d, want 2", len(ids))
	}
}

func TestService_ListLedger(t *testing.T) {
	store := newFakeStore()
	store.addBook("book-1", 1)
	svc := newTestService(store, nil)
	ctx := context.Background()

	if _, err := svc.Toggle(ctx, "user-1", "book-1"); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	rows, err := svc.ListLedger(ctx)
	if err != nil {
		t.Fatalf("ListLedger returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].Returned {
		t.Error("expected open history row in ledger")
	}
}
