package models

import "time"

// ConversationSummary, konuşma listesinde gösterilen tek satır. Server'ın
// iki farklı son-mesaj şekli (gömülü obje veya düz preview) buraya indirgenir.
type ConversationSummary struct {
	ID                 string
	Counterpart        Participant
	LastMessagePreview string
	LastActivity       time.Time
	UnreadCount        int
}

// Summarize, liste öğesini role göre özetler. Okunmamış sayı server'ın rol
// anahtarlı objesinden olduğu gibi alınır; rol bilinmiyorsa "user" anahtarı
// kullanılır.
func (item *ChatListItem) Summarize(role UserRole) ConversationSummary {
	s := ConversationSummary{
		ID:           item.ID,
		Counterpart:  item.Counterpart,
		LastActivity: item.CreatedAt,
	}

	switch {
	case item.LastMessage != nil:
		s.LastMessagePreview = item.LastMessage.Content
		s.LastActivity = item.LastMessage.CreatedAt
	case item.LastMessagePreview != nil:
		s.LastMessagePreview = *item.LastMessagePreview
	}
	if item.LastMessageAt != nil && item.LastMessageAt.After(s.LastActivity) {
		s.LastActivity = *item.LastMessageAt
	}

	if role == "" {
		role = RoleUser
	}
	s.UnreadCount = item.UnreadCount[string(role)]
	return s
}
