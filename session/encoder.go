package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the binary layout written by Encode.
//
// Layout v1:
//
//	version(1) | len(1) userID | len(1) username | len(1) role |
//	createdAt(8) | lastSeen(8) | fingerprint(32)
const CurrentSchemaVersion = 1

var (
	// ErrFieldTooLong is returned when a string field exceeds 255 bytes.
	ErrFieldTooLong = errors.New("session field too long")
	// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
	ErrSessionCorrupt = errors.New("session corrupt")
)

// Encode serializes s. SessionID is the storage key and is not encoded.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 3 + len(s.UserID) + len(s.Username) + len(s.Role) + 16 + 32)

	buf.WriteByte(CurrentSchemaVersion)

	for _, f := range [...]struct {
		name, value string
	}{
		{"userID", s.UserID},
		{"username", s.Username},
		{"role", s.Role},
	} {
		if len(f.value) > 255 {
			return nil, fmt.Errorf("%w: %s", ErrFieldTooLong, f.name)
		}
		buf.WriteByte(byte(len(f.value)))
		buf.WriteString(f.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastSeen); err != nil {
		return nil, err
	}
	buf.Write(s.Fingerprint[:])

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrSessionCorrupt, version)
	}

	s := &Session{SchemaVersion: version}

	fields := [...]*string{&s.UserID, &s.Username, &s.Role}
	for _, dst := range fields {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		*dst = string(b)
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &s.LastSeen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if _, err := io.ReadFull(reader, s.Fingerprint[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSessionCorrupt, reader.Len())
	}

	return s, nil
}
