package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	Cost = bcrypt.MinCost
}

func TestGetHash(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "regular password", password: "tempered-glass-6mm"},
		{name: "special chars", password: "p@ssw0rd!@#$%^&*()"},
		{name: "unicode", password: "стекло-закалённое"},
		{name: "too long for bcrypt", password: strings.Repeat("x", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := GetHash(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.NoError(t, CompareHash(hash, tt.password))
		})
	}
}

func TestGetHash_Salted(t *testing.T) {
	first, err := GetHash("same-password")
	require.NoError(t, err)
	second, err := GetHash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCompareHash(t *testing.T) {
	hash, err := GetHash("correct-horse")
	require.NoError(t, err)

	err = CompareHash(hash, "wrong-horse")
	assert.ErrorIs(t, err, ErrMismatch)

	err = CompareHash("not-a-bcrypt-hash", "correct-horse")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}

func TestVerify(t *testing.T) {
	hash, err := GetHash("correct-horse")
	require.NoError(t, err)
	empty := ""

	assert.True(t, Verify(&hash, "correct-horse"))
	assert.False(t, Verify(&hash, "wrong"))
	assert.False(t, Verify(nil, "correct-horse"))
	assert.False(t, Verify(&empty, ""))
}
