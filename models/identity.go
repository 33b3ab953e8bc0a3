package models

import "strings"

// Identity, oturum açmış kullanıcının kimliği: opak user id + bearer token.
// Bir live channel session'ı boyunca değişmez; kimlik değişirse session
// baştan kurulur.
type Identity struct {
	UserID string
	Role   UserRole
	Token  string
}

// HasCredential, bearer token'ın mevcut olup olmadığını döner.
// Token yoksa core hiçbir REST veya live channel çağrısı yapmaz.
func (i Identity) HasCredential() bool {
	return strings.TrimSpace(i.Token) != ""
}

// IsZero, hiçbir kimlik bilgisi taşımayan değer için true döner.
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.Token == ""
}
