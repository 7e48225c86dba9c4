package tunnel

import (
	"sync"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// BufferPoolSize is the size of each relay buffer, the largest chunk moved per read.
const BufferPoolSize = config.HandshakeBufferSize

// bufferPool is a pool of reusable byte slices for relay reads.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, BufferPoolSize)
		return &buf
	},
}

// getBuffer retrieves a buffer from the pool
func getBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// putBuffer returns a buffer to the pool for reuse
func putBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}
