package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, access token'ın payload'ı.
//
// Backend token'ı HS256 ile imzalar ve doğrular. Client tarafındaki identity
// resolver aynı struct'ı imzayı doğrulamadan parse eder: /auth/me
// erişilemediğinde user_id buradan okunur.
type TokenClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}
