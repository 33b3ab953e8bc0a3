// Package ratelimit, reference backend için key bazlı spam koruması sağlar.
//
// Aynı Limiter iki yerde kullanılır:
//   - POST /api/chats/{id}/messages: key = userID (mesaj spam'i)
//   - POST /api/auth/login: key = client IP (brute force)
//
// Her key kendi token bucket'ına (x/time/rate) sahiptir: burst = max,
// dolum hızı window başına max token. Bucket boşken gelen istek cooldown
// başlatır; cooldown bitene kadar o key için tüm istekler reddedilir.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry, tek bir key'in durumu.
// cooldownUntil zero value ise cooldown yok demektir.
type entry struct {
	limiter       *rate.Limiter
	lastSeen      time.Time
	cooldownUntil time.Time
}

// Limiter, key bazlı token bucket + cooldown limiter'ı.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	max      int
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

// New, limiter oluşturur ve arka plan temizleme goroutine'ini başlatır.
//
//	limiter := ratelimit.New(5, 5*time.Second, 15*time.Second)
//	if ok, retry := limiter.Allow(userID); !ok { ... 429, Retry-After: retry }
func New(max int, window, cooldown time.Duration) *Limiter {
	if max < 1 {
		max = 1
	}
	l := &Limiter{
		entries:     make(map[string]*entry),
		max:         max,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) newBucket() *rate.Limiter {
	return rate.NewLimiter(rate.Every(l.window/time.Duration(l.max)), l.max)
}

// Allow, key için isteğe izin verilip verilmediğini döner.
// İzin verilmediyse ikinci değer kalan cooldown süresidir.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: l.newBucket()}
		l.entries[key] = e
	}
	e.lastSeen = now

	if !e.cooldownUntil.IsZero() {
		if now.Before(e.cooldownUntil) {
			return false, e.cooldownUntil.Sub(now)
		}
		// Cooldown bitti, dolu bucket ile baştan
		e.cooldownUntil = time.Time{}
		e.limiter = l.newBucket()
	}

	if e.limiter.AllowN(now, 1) {
		return true, 0
	}
	e.cooldownUntil = now.Add(l.cooldown)
	return false, l.cooldown
}

// Stop, temizleme goroutine'ini durdurur.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup, bir window boyunca sessiz kalmış ve cooldown'ı bitmiş key'leri siler.
// Bu sürede bucket tamamen dolmuş olur, silmek davranışı değiştirmez.
func (l *Limiter) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		idle := now.Sub(e.lastSeen) > l.window
		cooldownExpired := e.cooldownUntil.IsZero() || now.After(e.cooldownUntil)
		if idle && cooldownExpired {
			delete(l.entries, key)
		}
	}
}
