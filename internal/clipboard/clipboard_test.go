package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type memSink struct {
	text string
	err  error
}

func (m *memSink) WriteAll(text string) error {
	if m.err != nil {
		return m.err
	}
	m.text = text
	return nil
}

func TestCopy(t *testing.T) {
	sink := &memSink{}
	assert.True(t, Copy(sink, "TOTAL: $9000"))
	assert.Equal(t, "TOTAL: $9000", sink.text)
}

func TestCopy_FailureIsNonFatal(t *testing.T) {
	sink := &memSink{err: errors.New("no display")}
	assert.False(t, Copy(sink, "x"))
}

func TestCopy_NilSink(t *testing.T) {
	assert.False(t, Copy(nil, "x"))
}

func TestSystemImplementsSink(t *testing.T) {
	var _ Sink = System{}
}
