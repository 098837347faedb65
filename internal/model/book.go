// Package model はドメインモデルを定義する。
package model

import "time"

// Author は著者を表す。
type Author struct {
	ID   string
	Name string
}

// Category は蔵書の分類を表す。
type Category struct {
	ID   string
	Name string
}

// Book は蔵書を表す。
// Availableは貸出可能な冊数であり、0未満にならないことを
// データベースのCHECK制約と条件付きUPDATEで保証する。
type Book struct {
	ID          string
	Title       string
	Year        int
	Description string // サニタイズ済みHTML
	Available   int
	AuthorID    *string
	CategoryID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookUpdate は蔵書の部分更新を表す。
// nilフィールドは変更しない。
type BookUpdate struct {
	Title       *string
	Year        *int
	Description *string
	Available   *int
	AuthorID    *string
	CategoryID  *string
}
