package sidecar

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewSessionID generates a fresh session identifier for /query. ULIDs sort
// by creation time, which keeps any backend-side session listing stable.
func NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
