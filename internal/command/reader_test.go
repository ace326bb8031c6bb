package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_SkipsBlankLinesAndTracksLineNumbers(t *testing.T) {
	r := NewReader(strings.NewReader("ORDER BUY BTCUSDT 1 100 cid-1\n\n  \nCANCEL cid-1\n"))

	line, lineNo, err, ok := r.Next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, lineNo)
	assert.Contains(t, line, "ORDER BUY")

	line, lineNo, err, ok = r.Next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 4, lineNo)
	assert.Contains(t, line, "CANCEL")

	_, _, _, ok = r.Next()
	assert.False(t, ok)
}

func TestReader_RejectsControlCharacters(t *testing.T) {
	r := NewReader(strings.NewReader("CANCEL cid-\x01bad\n"))
	_, _, err, ok := r.Next()
	require.True(t, ok)
	require.Error(t, err)
}

func TestReader_AllowsTabs(t *testing.T) {
	r := NewReader(strings.NewReader("CANCEL\tcid-1\n"))
	_, _, err, ok := r.Next()
	require.True(t, ok)
	require.NoError(t, err)
}
