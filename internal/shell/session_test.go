//go:build linux || darwin

package shell

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/assert"
)

func newBufferedSession(capacity int) *Session {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Session{
		ID:     "test",
		logger: logrus.NewEntry(l),
		output: ringbuffer.New(capacity),
	}
}

func TestSession_DrainOrder(t *testing.T) {
	s := newBufferedSession(32)
	s.appendOutput([]byte("hello "))
	s.appendOutput([]byte("world"))

	assert.Equal(t, "hello", string(s.Drain(5)))
	assert.Equal(t, " world", string(s.Drain(0)))
	assert.Nil(t, s.Drain(0))
}

func TestSession_ScrollbackDropsOldest(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   string
	}{
		{name: "fits", writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "overflow trims head", writes: []string{"abcdef", "ghij"}, want: "cdefghij"},
		{name: "single write larger than capacity", writes: []string{"0123456789AB"}, want: "456789AB"},
		{name: "exactly full", writes: []string{"abcd", "efgh"}, want: "abcdefgh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newBufferedSession(8)
			for _, w := range tt.writes {
				s.appendOutput([]byte(w))
			}
			assert.Equal(t, tt.want, string(s.Drain(0)))
		})
	}
}

func TestSession_PidWithoutProcess(t *testing.T) {
	s := newBufferedSession(8)
	assert.Zero(t, s.Pid())
}

func TestWinSize_Range(t *testing.T) {
	ws, err := winSize(65535, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint16(65535), ws.Cols)

	_, err = winSize(65536, 24)
	assert.Error(t, err)
	_, err = winSize(80, -1)
	assert.Error(t, err)
}
