package hsms

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
)

// contextGenerator generates the context (system bytes) of outgoing messages.
//
// The starting value is read from crypto/rand, later values increment atomically,
// so two connections in one process rarely hand out the same context.
type contextGenerator struct {
	id atomic.Uint32
}

func newContextGenerator() *contextGenerator {
	inst := &contextGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return inst
	}
	inst.id.Store(binary.LittleEndian.Uint32(buf[:]))

	return inst
}

// next returns the next non-zero context.
func (g *contextGenerator) next() uint32 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}

var (
	genInst *contextGenerator
	genOnce sync.Once
)

// GenerateContext returns a non-zero context for a new transaction.
func GenerateContext() uint32 {
	genOnce.Do(func() {
		genInst = newContextGenerator()
	})

	return genInst.next()
}
