// Package model はドメインモデルを定義する。
package model

import "time"

// User は図書館の利用者を表す。
// PasswordHashにはbcryptハッシュを保持し、平文パスワードは保存しない。
type User struct {
	ID           string
	Email        string
	Name         string
	Surname      string
	Phone        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは暗号論的乱数から生成された不透明なトークン。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
