package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc.def", want: "abc.def"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "empty", header: "", wantErr: true},
		{name: "no scheme", header: "abc", wantErr: true},
		{name: "basic scheme", header: "Basic abc", wantErr: true},
		{name: "blank token", header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLocalJWTAuth_RequiresSecret(t *testing.T) {
	_, err := NewLocalJWTAuth("", time.Hour)
	assert.Error(t, err)

	a, err := NewLocalJWTAuth("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, a.TokenExpiry)
}

func TestGenerateAndVerifyToken(t *testing.T) {
	a, err := NewLocalJWTAuth("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := a.GenerateToken("64b7f0c2a1b2c3d4e5f60718")
	require.NoError(t, err)

	userID, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", userID)
}

func TestVerifyToken_RejectsTamperedAndForeignTokens(t *testing.T) {
	a, _ := NewLocalJWTAuth("test-secret", time.Hour)
	other, _ := NewLocalJWTAuth("other-secret", time.Hour)

	token, err := other.GenerateToken("user-1")
	require.NoError(t, err)

	_, err = a.VerifyToken(token)
	assert.Error(t, err, "token signed with another key must fail")

	valid, _ := a.GenerateToken("user-1")
	_, err = a.VerifyToken(valid + "x")
	assert.Error(t, err, "tampered signature must fail")

	_, err = a.VerifyToken("not-a-jwt")
	assert.Error(t, err)
}

func TestVerifyToken_RejectsExpired(t *testing.T) {
	a, _ := NewLocalJWTAuth("test-secret", time.Hour)

	claims := SessionClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.SecretKey)
	require.NoError(t, err)

	_, err = a.VerifyToken(token)
	assert.Error(t, err)
}

func TestHashAndVerifyPassword(t *testing.T) {
	a, _ := NewLocalJWTAuth("test-secret", time.Hour)

	hash, err := a.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct horse")

	ok, err := a.VerifyPassword(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.VerifyPassword(hash, "wrong horse")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.VerifyPassword("bcrypt$nope", "correct horse")
	assert.Error(t, err)
}

func TestGenerateOneTimeToken_Unique(t *testing.T) {
	first, err := GenerateOneTimeToken()
	require.NoError(t, err)
	second, err := GenerateOneTimeToken()
	require.NoError(t, err)

	assert.Len(t, first, 40)
	assert.NotEqual(t, first, second)
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword("short"))
	assert.Error(t, ValidatePassword("        "))
	assert.NoError(t, ValidatePassword("long enough"))
}
