package session

import "testing"

// FuzzSessionDecode exercises the binary session decoder with arbitrary inputs.
func FuzzSessionDecode(f *testing.F) {
	sess := &Session{
		UserID:      "user1",
		Username:    "alice",
		Role:        "teller",
		CreatedAt:   1700000000000,
		LastSeen:    1700000060000,
		Fingerprint: [32]byte{1, 2, 3},
	}
	encoded, err := Encode(sess)
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:10])
		f.Add(encoded[:len(encoded)-1])
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		out, err := Encode(s)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if string(out) != string(data) {
			t.Fatalf("round trip mismatch")
		}
	})
}
