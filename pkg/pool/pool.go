// Package pool provides object pooling for nornicogm's hot paths.
//
// Every batch renders one script fragment per statement and every websocket
// request encodes a framed message. Reusing the buffers behind those keeps
// allocation flat for sessions that send many small batches.
//
// Pooled objects:
//   - String builders (script rendering, interpolation)
//   - Byte buffers (websocket frames)
//   - String slices (fragment parts)
//
// Usage:
//
//	sb := pool.GetStringBuilder()
//	defer pool.PutStringBuilder(sb)
//	sb.WriteString("g.V(")
package pool

import (
	"sync"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the capacity of slices kept in the pools
	MaxSize int
}

var globalConfig = PoolConfig{
	Enabled: true,
	MaxSize: 1000,
}

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	globalConfig = config
	initPools()
}

func initPools() {
	stringBuilderPool = sync.Pool{
		New: func() any {
			return &StringBuilder{buf: make([]byte, 0, 256)}
		},
	}
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, 1024)
		},
	}
	stringSlicePool = sync.Pool{
		New: func() any {
			return make([]string, 0, 16)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// String Builder Pool
// =============================================================================

var stringBuilderPool = sync.Pool{
	New: func() any {
		return &StringBuilder{buf: make([]byte, 0, 256)}
	},
}

// StringBuilder is a poolable append-only string buffer.
type StringBuilder struct {
	buf []byte
}

// WriteString appends a string to the builder.
func (b *StringBuilder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a byte to the builder.
func (b *StringBuilder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

const hexDigits = "0123456789abcdef"

// WriteQuoted appends s as a single-quoted Groovy string literal. Control
// characters are escaped so the literal stays on one line.
func (b *StringBuilder) WriteQuoted(s string) {
	b.buf = append(b.buf, '\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '\\':
			b.buf = append(b.buf, '\\', c)
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			if c < 0x20 || c == 0x7f {
				b.buf = append(b.buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
				continue
			}
			b.buf = append(b.buf, c)
		}
	}
	b.buf = append(b.buf, '\'')
}

// String returns the built string.
func (b *StringBuilder) String() string {
	return string(b.buf)
}

// Len returns current length.
func (b *StringBuilder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse.
func (b *StringBuilder) Reset() {
	b.buf = b.buf[:0]
}

// GetStringBuilder returns a string builder from the pool.
func GetStringBuilder() *StringBuilder {
	if !globalConfig.Enabled {
		return &StringBuilder{buf: make([]byte, 0, 256)}
	}
	b := stringBuilderPool.Get().(*StringBuilder)
	b.Reset()
	return b
}

// PutStringBuilder returns a string builder to the pool.
func PutStringBuilder(b *StringBuilder) {
	if !globalConfig.Enabled || b == nil {
		return
	}
	if cap(b.buf) > 64*1024 { // Don't pool huge buffers
		return
	}
	b.Reset()
	stringBuilderPool.Put(b)
}

// =============================================================================
// Byte Buffer Pool
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 1024*1024 { // Don't pool huge buffers (>1MB)
		return
	}
	byteBufferPool.Put(buf[:0])
}

// =============================================================================
// String Slice Pool
// =============================================================================

var stringSlicePool = sync.Pool{
	New: func() any {
		return make([]string, 0, 16)
	},
}

// GetStringSlice returns a string slice from the pool.
func GetStringSlice() []string {
	if !globalConfig.Enabled {
		return make([]string, 0, 16)
	}
	return stringSlicePool.Get().([]string)[:0]
}

// PutStringSlice returns a string slice to the pool.
func PutStringSlice(s []string) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	for i := range s {
		s[i] = ""
	}
	stringSlicePool.Put(s[:0])
}
