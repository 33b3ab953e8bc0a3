// Package repository, veritabanı erişim katmanını tanımlar.
//
// Service katmanı doğrudan SQL yazmaz; bu paketteki interface'ler üzerinden
// çalışır. Testlerde fake repository ile DB olmadan çalışılabilir.
package repository

import (
	"context"

	"github.com/akinalp/eventchat/models"
)

// UserRepository, kullanıcı veritabanı işlemleri için interface.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// ListByRole, rolü verilen tüm hesapları döner (ör: vendor dizini).
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}
