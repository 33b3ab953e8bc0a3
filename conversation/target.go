package conversation

// Target, açılacak konuşmayı tarif eder.
type Target struct {
	ChatID   string  // mevcut konuşma; doluysa doğrudan kullanılır
	VendorID *string // nil ve ChatID boşsa support konuşması
}

// Support, kullanıcının (tek) support konuşması.
func Support() Target { return Target{} }

// Vendor, vendor ile konuşma; yoksa oluşturulur.
func Vendor(vendorID string) Target { return Target{VendorID: &vendorID} }

// Existing, id'si bilinen konuşma.
func Existing(chatID string) Target { return Target{ChatID: chatID} }

// Status, pipeline'ın yaşam döngüsü.
//
//	Initializing → Ready ⇄ Sending → Closed
type Status int

const (
	Initializing Status = iota
	Ready
	Sending
	Closed
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	case Closed:
		return "closed"
	}
	return "unknown"
}
