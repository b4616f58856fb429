package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

func ChainHash(prevHash string, seq uint64, value []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])

	h.Write(value)

	return hex.EncodeToString(h.Sum(nil))
}

// Seal builds the entry that follows prevHash at position seq.
func Seal(key []byte, seq uint64, prevHash string, value []byte) Entry {
	return Entry{
		Key:      append([]byte(nil), key...),
		Seq:      seq,
		Value:    append([]byte(nil), value...),
		PrevHash: prevHash,
		Hash:     ChainHash(prevHash, seq, value),
	}
}

// VerifyChain checks a full chain read in ascending order from seq 0.
// On failure it returns the seq of the first bad entry.
func VerifyChain(entries []Entry) (uint64, error) {
	prev := ""

	for i, e := range entries {
		seq := uint64(i)

		if e.Seq != seq {
			return seq, fmt.Errorf("%w: entry %d has seq %d", ErrChainBroken, seq, e.Seq)
		}

		if e.PrevHash != prev {
			return seq, fmt.Errorf("%w: entry %d does not link to its predecessor", ErrChainBroken, seq)
		}

		if e.Hash != ChainHash(prev, seq, e.Value) {
			return seq, fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, seq)
		}

		prev = e.Hash
	}

	return 0, nil
}
