// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Hem reference backend (handler → HTTP status) hem de client core
// (gateway → sentinel error) aynı error değerlerini kullanır:
//
//	if errors.Is(err, pkg.ErrNotAuthenticated) { ... }
package pkg

import "errors"

// Domain-level error'lar.
// Handler katmanı bu error'ları HTTP status code'larına map'ler,
// gateway client'ı ise HTTP status code'larını tekrar bu error'lara çevirir.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExists   = errors.New("already exists")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)

// Client core error'ları.
var (
	// ErrNotAuthenticated: bearer credential yok. Core hiçbir REST veya
	// live channel çağrısı yapmaz.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrEmptyMessage: gönderilecek metin boş veya sadece boşluk.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInFlight: bu conversation'da zaten onay bekleyen bir mesaj var.
	ErrSendInFlight = errors.New("a message is already being sent")

	// ErrClosed: bileşen kapatıldıktan sonra çağrıldı.
	ErrClosed = errors.New("closed")
)
