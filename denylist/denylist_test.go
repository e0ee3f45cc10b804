package denylist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rules = `[Adblock Plus 2.0]
! comment
# another comment

||ads.example.com^
||Tracker.Example.NET^
plain.example.org
   ||spaced.example.com^
||dotted.example.com.^
`

func TestLoad(t *testing.T) {
	s, err := Load(strings.NewReader(rules))
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())

	tests := []struct {
		domain string
		want   bool
	}{
		{domain: "ads.example.com", want: true},
		{domain: "ads.example.com.", want: true},
		{domain: "ADS.example.com", want: true},
		{domain: "tracker.example.net", want: true},
		{domain: "plain.example.org", want: true},
		{domain: "spaced.example.com", want: true},
		{domain: "dotted.example.com", want: true},
		{domain: "sub.ads.example.com", want: false},
		{domain: "example.com", want: false},
		{domain: "||ads.example.com^", want: false},
		{domain: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Contains(tt.domain))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deny.txt")
	require.NoError(t, os.WriteFile(path, []byte("||ads.example.com^\n"), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, s.Contains("ads.example.com"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	assert.Greater(t, s.Len(), 0)
	assert.True(t, s.Contains("doubleclick.net"))
	assert.False(t, s.Contains("example.com"))
}

func TestNilStore(t *testing.T) {
	var s *Store
	assert.False(t, s.Contains("ads.example.com"))
	assert.Zero(t, s.Len())
}

func TestLoadLongLines(t *testing.T) {
	long := "||" + strings.Repeat("a", 100<<10) + ".example.com^"
	list := "||before.example.com^\n" + long + "\n||after.example.com^\n" + long

	s, err := Load(strings.NewReader(list))
	require.NoError(t, err, "an oversized line does not abort loading")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("before.example.com"))
	assert.True(t, s.Contains("after.example.com"))
}

func TestLoadReadError(t *testing.T) {
	_, err := Load(iotest.ErrReader(errors.New("disk gone")))
	assert.Error(t, err)
}
