package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetenv(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.SetString(EnvPrefix+"API_KEY", "  secret-1  "))

	v, ok, err := s.GetString("env/API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "  secret-1  ", v)

	assert.Equal(t, "secret-1", s.Getenv("API_KEY"))
	assert.Equal(t, "", s.Getenv("MISSING"))

	require.NoError(t, s.SetString("env/EMPTY", ""))
	_, ok, err = s.GetString("env/EMPTY")
	require.NoError(t, err)
	assert.True(t, ok, "empty value still exists")
}

func TestStore_NilIsSafe(t *testing.T) {
	var s *Store
	assert.Equal(t, "", s.Getenv("API_KEY"))
	assert.NoError(t, s.Close())
	_, _, err := s.GetString("x")
	assert.Error(t, err)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, k)

	hexKey := strings.Repeat("ab", 32)
	k, err = ParseKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Len(t, k, 32)

	raw := make([]byte, 32)
	raw[0] = 7
	k, err = ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, k)

	_, err = ParseKey("abcd")
	assert.Error(t, err)

	_, err = ParseKey("not a key!")
	assert.Error(t, err)
}
