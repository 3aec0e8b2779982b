package wire

import "fmt"

// RoomID is a 1-20 character room identifier restricted to [A-Za-z0-9_-].
type RoomID string

// MaxRoomIDLength is the varchar cap enforced when decoding a RoomID off the
// wire.
const MaxRoomIDLength = 20

// ValidRoomID reports whether s is a legal RoomID: 1-20 characters, each one
// alphanumeric, '-', or '_'.
func ValidRoomID(s string) bool {
	if len(s) < 1 || len(s) > MaxRoomIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// ReadRoomID decodes a varchar(20) RoomID and validates it, returning a
// ProtocolError on violation.
func (r *Reader) ReadRoomID() (RoomID, error) {
	s, err := r.Varchar(MaxRoomIDLength)
	if err != nil {
		return "", err
	}
	if !ValidRoomID(s) {
		return "", protoErr("room_id", fmt.Errorf("invalid room id %q", s))
	}
	return RoomID(s), nil
}

// WriteRoomID writes a RoomID as a length-prefixed string. Callers are
// expected to only ever construct valid RoomIDs (e.g. via ValidRoomID).
func (w *Writer) WriteRoomID(id RoomID) {
	w.String(string(id))
}
