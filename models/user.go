// Package models, uygulamanın domain modellerini tanımlar.
//
// Aynı struct'lar hem reference backend'in SQL/HTTP katmanında hem de
// client core'un gateway decode'unda kullanılır; JSON şekli REST kontratıdır
// (camelCase alanlar: chatId, vendorId, isTyping ...).
package models

import (
	"fmt"
	"strings"
	"time"
)

// UserRole, bir hesabın platformdaki rolü.
// Unread sayacı bu role göre anahtarlanır: {"user": 2, "vendor": 0}.
type UserRole string

const (
	RoleUser    UserRole = "user"
	RoleVendor  UserRole = "vendor"
	RoleSupport UserRole = "support"
)

// Valid, rolün bilinen değerlerden biri olup olmadığını döner.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleVendor, RoleSupport:
		return true
	}
	return false
}

// User, bir hesabı temsil eder.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  *string   `json:"displayName"`
	AvatarURL    *string   `json:"avatarUrl"`
	Role         UserRole  `json:"role"`
	PasswordHash string    `json:"-"` // API response'a asla dahil edilmez
	CreatedAt    time.Time `json:"createdAt"`
}

// Name, ekranda gösterilecek isim: display name varsa o, yoksa username.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

// Participant, bir konuşmadaki karşı tarafın özet bilgisi.
// GET /chats içinde gömülü gelir.
type Participant struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      UserRole `json:"role"`
	AvatarURL *string  `json:"avatarUrl,omitempty"`
}

// ToParticipant, User'dan Participant özeti üretir.
func (u *User) ToParticipant() Participant {
	return Participant{
		ID:        u.ID,
		Name:      u.Name(),
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
	}
}

// LoginRequest, POST /api/auth/login body'si.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate, LoginRequest'in geçerli olup olmadığını kontrol eder.
func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return fmt.Errorf("username is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// LoginResponse, başarılı girişte dönen token ve kullanıcı.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// RegisterRequest, yeni hesap oluşturma isteği (demo seed ve register endpoint'i).
type RegisterRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	DisplayName string   `json:"displayName"`
	Role        UserRole `json:"role"`
}

// Validate, kullanıcı adı 3-32, şifre en az 8 karakter olmalı.
// Rol boşsa "user" kabul edilir.
func (r *RegisterRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if len(r.Username) < 3 || len(r.Username) > 32 {
		return fmt.Errorf("username must be between 3 and 32 characters")
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if r.Role == "" {
		r.Role = RoleUser
	}
	if !r.Role.Valid() {
		return fmt.Errorf("invalid role: %s", r.Role)
	}
	return nil
}
