package main

import (
	"context"
	"log"
	"time"

	"github.com/akinalp/eventchat/services"
	"github.com/akinalp/eventchat/ws"
)

// registerHubCallbacks, Hub'ın service'lere ihtiyaç duyan callback'lerini bağlar.
// Hub ws paketinde yaşar ve service'leri bilmez; bağlantı burada kurulur.
func registerHubCallbacks(hub *ws.Hub, readState services.ReadStateService) {
	hub.OnMarkRead(func(userID, chatID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := readState.MarkRead(ctx, userID, chatID); err != nil {
			log.Printf("[ws] mark_read failed user=%s chat=%s: %v", userID, chatID, err)
		}
	})
}
