package database

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations, binary'ye gömülü migration dosyalarını döner.
// Deploy edilen binary yanında SQL dosyalarına ihtiyaç duymaz.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// Dizin derleme zamanında sabittir; buraya düşmek build hatasıdır.
		panic(err)
	}
	return sub
}
