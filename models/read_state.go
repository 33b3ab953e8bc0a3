package models

import "time"

// ReadState, bir kullanıcının bir konuşmadaki okuma durumu.
//
// Watermark pattern: her mesajı tek tek işaretlemek yerine "bu seq'e kadar
// okudum" bilgisi tutulur. Okunmamış sayı = LastReadSeq'ten sonra karşı
// taraftan gelen mesaj sayısı.
type ReadState struct {
	UserID      string    `json:"userId"`
	ChatID      string    `json:"chatId"`
	LastReadSeq int64     `json:"lastReadSeq"`
	LastReadAt  time.Time `json:"lastReadAt"`
}
