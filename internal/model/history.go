// Package model はドメインモデルを定義する。
package model

import "time"

// History は貸出記録を表す。
// Returnedがfalseの行は「貸出中」を意味し、
// (UserID, BookID)の組につき貸出中の行は最大1件に制約される。
type History struct {
	ID         string
	UserID     string
	BookID     string
	LoanedAt   time.Time
	ReturnedAt *time.Time
	Returned   bool
}

// RentalResult は貸出トグル操作の結果を表す。
type RentalResult string

const (
	// RentalResultLoaned は新規貸出が成立したことを示す。
	RentalResultLoaned RentalResult = "loaned"
	// RentalResultReturned は返却が完了したことを示す。
	RentalResultReturned RentalResult = "returned"
)
