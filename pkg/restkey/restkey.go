// Package restkey generates the shared REST API key handed out at install
// time. The key is a bearer secret compared with exact string equality, so
// all that matters is entropy and that it survives copy/paste.
package restkey

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const segments = 4

var separators = []string{"-", "_", ".", "~"}

// Generate returns a new high-entropy API key: several random tokens joined
// with randomly chosen separators.
func Generate() string {
	var b strings.Builder
	for i := 0; i < segments; i++ {
		if i > 0 {
			b.WriteString(separators[randomIndex(len(separators))])
		}
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()
}

func randomIndex(n int) int {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back
		// to the first separator rather than aborting key generation.
		return 0
	}
	return int(idx.Int64())
}
