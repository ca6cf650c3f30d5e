package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfigure(t *testing.T) {
	origConfig := globalConfig
	defer Configure(origConfig)

	t.Run("enable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 500})
		assert.True(t, IsEnabled())
		assert.Equal(t, 500, globalConfig.MaxSize)
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000})
		assert.False(t, IsEnabled())
	})
}

// =============================================================================
// String Builder Pool Tests
// =============================================================================

func TestStringBuilderPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	t.Run("build and reuse", func(t *testing.T) {
		sb := GetStringBuilder()
		sb.WriteString("g.V(")
		sb.WriteByte(')')
		assert.Equal(t, "g.V()", sb.String())
		assert.Equal(t, 5, sb.Len())
		PutStringBuilder(sb)

		sb2 := GetStringBuilder()
		assert.Equal(t, 0, sb2.Len())
		PutStringBuilder(sb2)
	})

	t.Run("quoted literals are escaped", func(t *testing.T) {
		sb := GetStringBuilder()
		defer PutStringBuilder(sb)
		sb.WriteQuoted(`it's a \ line` + "\n")
		assert.Equal(t, `'it\'s a \\ line\n'`, sb.String())
	})

	t.Run("control characters stay on one line", func(t *testing.T) {
		tests := []struct {
			in   string
			want string
		}{
			{"a\rb", `'a\rb'`},
			{"a\tb", `'a\tb'`},
			{"a\x00b", `'a\u0000b'`},
			{"\x1b[0m", `'\u001b[0m'`},
			{"del\x7f", `'del\u007f'`},
			{"héllo", `'héllo'`},
		}
		for _, tt := range tests {
			sb := GetStringBuilder()
			sb.WriteQuoted(tt.in)
			assert.Equal(t, tt.want, sb.String())
			assert.NotContains(t, sb.String(), "\r")
			PutStringBuilder(sb)
		}
	})

	t.Run("nil put is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() { PutStringBuilder(nil) })
	})

	t.Run("disabled pooling allocates", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000})
		defer Configure(PoolConfig{Enabled: true, MaxSize: 1000})

		sb := GetStringBuilder()
		sb.WriteString("x")
		PutStringBuilder(sb)
		assert.Equal(t, "x", sb.String())
	})
}

// =============================================================================
// Byte Buffer Pool Tests
// =============================================================================

func TestByteBufferPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	buf := GetByteBuffer()
	assert.Len(t, buf, 0)
	assert.Greater(t, cap(buf), 0)
	buf = append(buf, "frame"...)
	PutByteBuffer(buf)

	assert.Len(t, GetByteBuffer(), 0)

	// oversized buffers are dropped without panicking
	PutByteBuffer(make([]byte, 0, 2*1024*1024))
}

// =============================================================================
// String Slice Pool Tests
// =============================================================================

func TestStringSlicePool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 10})
	defer Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	s := GetStringSlice()
	s = append(s, "a", "b")
	PutStringSlice(s)
	assert.Len(t, GetStringSlice(), 0)

	PutStringSlice(make([]string, 0, 100))
}

func TestConcurrentAccess(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sb := GetStringBuilder()
				sb.WriteString("fragment")
				PutStringBuilder(sb)

				buf := GetByteBuffer()
				buf = append(buf, 1, 2, 3)
				PutByteBuffer(buf)
			}
		}()
	}
	wg.Wait()
}
