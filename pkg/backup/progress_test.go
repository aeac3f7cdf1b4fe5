package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressWriter(t *testing.T) {
	assert := assert.New(t)

	var got []float64
	w := newProgressWriter(func(frac float64) {
		got = append(got, frac)
	})

	chunks := []string{
		"sending incremental file list\n",
		"   1,234,567  11% 33.1MB/s  0:00:12\r",
		"   2,345,678  11% 33.0MB/s  0:00:11\r", // unchanged, no publish
		"   3,456,789  57% 32.9MB/s  0:00:07   5,000,000  63% 32.9MB/s 0:00:05\r",
		"garbage without numbers\r",
		"   9,999,999 100% 32.9MB/s  0:00:00\r",
	}

	for _, c := range chunks {
		n, err := w.Write([]byte(c))
		assert.Nil(err)
		assert.Equal(len(c), n)
	}

	if assert.Len(got, 3) {
		assert.InDelta(0.11, got[0], 1e-9)
		assert.InDelta(0.63, got[1], 1e-9)
		assert.InDelta(1.0, got[2], 1e-9)
	}
}
