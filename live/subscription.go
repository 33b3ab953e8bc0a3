package live

import "sync"

// Subscription, Subscribe/SubscribeState'in döndürdüğü handle.
// Unsubscribe birden fazla kez çağrılabilir; nil handle üzerinde de güvenlidir.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription, cancel'ı en fazla bir kez çalıştıran handle oluşturur.
// Channel arayüzünü karşılayan başka implementasyonlar da kullanır.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}
