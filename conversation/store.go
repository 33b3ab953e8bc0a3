package conversation

import "github.com/akinalp/eventchat/models"

// store, mesajları geliş sırasıyla tutar. Sıra asla timestamp'e göre
// yeniden düzenlenmez; id değişimi pozisyonu korur.
type store struct {
	order []string
	byID  map[string]*models.Message
}

func newStore() *store {
	return &store{byID: make(map[string]*models.Message)}
}

func (s *store) has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// append, id görülmemişse sona ekler.
func (s *store) append(m models.Message) bool {
	if m.ID == "" || s.has(m.ID) {
		return false
	}
	s.byID[m.ID] = &m
	s.order = append(s.order, m.ID)
	return true
}

// rename, oldID'li mesajın id'sini yerinde değiştirir.
func (s *store) rename(oldID, newID string) bool {
	m, ok := s.byID[oldID]
	if !ok || s.has(newID) {
		return false
	}
	for i, id := range s.order {
		if id == oldID {
			s.order[i] = newID
			break
		}
	}
	delete(s.byID, oldID)
	m.ID = newID
	s.byID[newID] = m
	return true
}

func (s *store) remove(id string) {
	if !s.has(id) {
		return
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// merge, bilinen mesajları yerinde günceller, görülmemişleri sona ekler.
// Eklenen mesaj sayısını döner.
func (s *store) merge(msgs []models.Message) int {
	added := 0
	for _, m := range msgs {
		if cur, ok := s.byID[m.ID]; ok {
			cur.Content = m.Content
			cur.CreatedAt = m.CreatedAt
			continue
		}
		if s.append(m) {
			added++
		}
	}
	return added
}

func (s *store) list() []models.Message {
	out := make([]models.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}
