package wire

// Status is the one-byte transaction status of the classic framed protocol.
type Status byte

const (
	// StatusDone marks the last (or only) transaction of an exchange.
	StatusDone Status = 'm'

	// StatusMore marks a transaction followed by more of the same exchange.
	StatusMore Status = 't'
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "DONE"
	case StatusMore:
		return "MORE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for the statuses the classic protocol defines.
func (s Status) IsValid() bool {
	return s == StatusDone || s == StatusMore
}
