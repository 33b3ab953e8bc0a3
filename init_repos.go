package main

import (
	"database/sql"

	"github.com/akinalp/eventchat/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	User      repository.UserRepository
	Chat      repository.ChatRepository
	ReadState repository.ReadStateRepository
}

// initRepositories, aynı connection pool'u paylaşan repository'leri oluşturur.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		User:      repository.NewSQLiteUserRepo(conn),
		Chat:      repository.NewSQLiteChatRepo(conn),
		ReadState: repository.NewSQLiteReadStateRepo(conn),
	}
}
