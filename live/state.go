package live

// State, live channel session'ının bağlantı durumu.
//
//	Absent → Connecting → Connected ⇄ Reconnecting → Failed
//
// Failed terminaldir: yeniden denemek için açıkça Open çağrılmalıdır.
// Close her durumdan Absent'a götürür.
type State int

const (
	Absent State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}
