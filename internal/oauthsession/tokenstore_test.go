package oauthsession

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgoauth "mcprt/pkg/oauth"
)

func TestTokenStore_SaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	tok := &pkgoauth.Token{AccessToken: "abc", RefreshToken: "ref", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(tok, "https://server", "https://issuer", "idtok"))

	got, err := store.Get()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.Equal(t, "idtok", got.IDToken)
	assert.True(t, got.isValid())
}

func TestTokenStore_GetMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	got, err := store.Get()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, store.HasValid())
}

func TestTokenStore_ExpiredTokenIsInvalid(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	tok := &pkgoauth.Token{AccessToken: "abc", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, store.Save(tok, "", "", ""))

	assert.False(t, store.HasValid())
}

func TestTokenStore_WithinExpiryBufferIsInvalid(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	tok := &pkgoauth.Token{AccessToken: "abc", ExpiresAt: time.Now().Add(30 * time.Second)}
	require.NoError(t, store.Save(tok, "", "", ""))

	assert.False(t, store.HasValid())
}

func TestTokenStore_NoExpiryNeverInvalid(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	tok := &pkgoauth.Token{AccessToken: "abc"}
	require.NoError(t, store.Save(tok, "", "", ""))

	assert.True(t, store.HasValid())
}

func TestTokenStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&pkgoauth.Token{AccessToken: "abc"}, "", "", ""))
	require.NoError(t, store.Delete())

	got, err := store.Get()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenStore_SaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&pkgoauth.Token{AccessToken: "abc"}, "", "", ""))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "tokens.json", entries[0].Name())
}

func TestTokenStore_SurvivesReloadAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store1, err := NewTokenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store1.Save(&pkgoauth.Token{AccessToken: "abc"}, "srv", "iss", ""))

	store2, err := NewTokenStore(dir)
	require.NoError(t, err)
	got, err := store2.Get()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.Equal(t, "srv", got.ServerURL)
}

func TestNewTokenStore_RejectsEmptyDir(t *testing.T) {
	_, err := NewTokenStore("")
	assert.Error(t, err)
}

func TestNewTokenStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	_, err := NewTokenStore(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
