package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
)

func TestListTokens(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := auth.NewFileTokenStore("", nil)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveToken(ctx, "111", &auth.TokenRecord{AccessToken: "secret-a", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.SaveToken(ctx, "222", &auth.TokenRecord{AccessToken: "secret-b", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.SaveToken(ctx, "333", &auth.TokenRecord{AccessToken: "secret-c"}))

	var out bytes.Buffer
	require.NoError(t, listTokens(ctx, &out, store, now))

	text := out.String()
	assert.Contains(t, text, "COMPANY")
	assert.Regexp(t, `111\s+2024-05-01T13:00:00Z\s+valid`, text)
	assert.Regexp(t, `222\s+2024-05-01T12:01:00Z\s+refresh due`, text)
	assert.Regexp(t, `333\s+unknown\s+expired`, text)
	assert.NotContains(t, text, "secret")
}

func TestListTokensEmpty(t *testing.T) {
	store := auth.NewFileTokenStore("", nil)
	defer store.Close()

	var out bytes.Buffer
	require.NoError(t, listTokens(context.Background(), &out, store, time.Now()))
	assert.Contains(t, out.String(), "No stored tokens")
}
