package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrChainBroken is returned by VerifyChain when a record fails
// verification.
var ErrChainBroken = errors.New("audit chain broken")

// Chain links events into an HMAC-SHA256 hash chain. Each event's Hash
// covers its canonical record, which includes the previous event's hash
// and the event's sequence number.
type Chain struct {
	key []byte

	mu   sync.Mutex
	seq  uint64
	prev string
}

// NewChain returns nil when key is empty; a nil chain seals nothing.
func NewChain(key []byte) *Chain {
	if len(key) == 0 {
		return nil
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Chain{key: k}
}

// Seal assigns the next sequence number and links e to the previous
// sealed event.
func (c *Chain) Seal(e *Event) error {
	if c == nil || e == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e.Sequence = c.seq + 1
	e.PrevHash = c.prev
	e.Hash = ""

	sum, err := recordMAC(c.key, e.Record())
	if err != nil {
		return err
	}

	e.Hash = sum
	c.seq = e.Sequence
	c.prev = sum
	return nil
}

// Head returns the last sealed sequence number and hash.
func (c *Chain) Head() (uint64, string) {
	if c == nil {
		return 0, ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, c.prev
}

// VerifyChain checks a sequence of flat records as written by the sinks.
// A record with sequence 1 and no prev_hash starts a new chain segment,
// which happens after a process restart.
func VerifyChain(key []byte, records []map[string]any) error {
	var prev string
	var seq uint64

	for i, rec := range records {
		hash, _ := rec["hash"].(string)
		if hash == "" {
			return fmt.Errorf("%w: record %d has no hash", ErrChainBroken, i)
		}
		gotSeq, ok := sequenceOf(rec["sequence"])
		if !ok {
			return fmt.Errorf("%w: record %d has no sequence", ErrChainBroken, i)
		}
		gotPrev, _ := rec["prev_hash"].(string)

		restart := gotSeq == 1 && gotPrev == ""
		if !restart && (gotSeq != seq+1 || gotPrev != prev) {
			return fmt.Errorf("%w: record %d does not follow sequence %d", ErrChainBroken, i, seq)
		}

		body := make(map[string]any, len(rec))
		for k, v := range rec {
			if k != "hash" {
				body[k] = v
			}
		}
		want, err := recordMAC(key, body)
		if err != nil {
			return err
		}
		if !hmac.Equal([]byte(want), []byte(hash)) {
			return fmt.Errorf("%w: record %d hash mismatch", ErrChainBroken, i)
		}

		prev = hash
		seq = gotSeq
	}
	return nil
}

func recordMAC(key []byte, rec map[string]any) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func sequenceOf(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case float64:
		if n < 1 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 1 {
			return 0, false
		}
		return uint64(i), true
	}
	return 0, false
}
