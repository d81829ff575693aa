package types

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// ChainHash computes the audit chain value for this record given the chain
// value of the previous record (empty for the first). Each record's hash
// covers the prior hash plus every substantive field, so any retroactive
// edit, deletion or reorder of the trail changes the final value.
func (r *TransitionRecord) ChainHash(prev string) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte{0})
	h.Write([]byte(r.DocumentID))
	h.Write([]byte{0})
	h.Write([]byte(r.Version))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(r.Seq)))
	h.Write([]byte{0})
	h.Write([]byte(r.From))
	h.Write([]byte{0})
	h.Write([]byte(r.To))
	h.Write([]byte{0})
	h.Write([]byte(r.Actor))
	h.Write([]byte{0})
	h.Write([]byte(r.ActorRole))
	h.Write([]byte{0})
	h.Write([]byte(r.Reason))
	h.Write([]byte{0})
	h.Write([]byte(r.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")))
	return fmt.Sprintf("%x", h.Sum(nil))
}
