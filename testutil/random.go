package testutil

import (
	"crypto/rand"
	"encoding/hex"
)

// RandName returns a unique name usable as a database file or table name.
func RandName() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return "txconn_" + hex.EncodeToString(b[:])
}
