package models

// MessageRef identifies a message inside a chat log, by id or, for older
// clients, by its timestamp.
type MessageRef struct {
	ID        string
	Timestamp int64
}

// IsZero reports whether the reference names nothing.
func (r MessageRef) IsZero() bool {
	return r.ID == "" && r.Timestamp == 0
}

// Matches reports whether m is the referenced message. The id wins when set.
func (r MessageRef) Matches(m Message) bool {
	if r.ID != "" {
		return m.ID == r.ID
	}
	return r.Timestamp != 0 && m.Timestamp == r.Timestamp
}
