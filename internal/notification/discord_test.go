package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscord_SendSuccess(t *testing.T) {
	var message DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&message))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	discord := &Discord{SuccessURL: server.URL}
	require.NoError(t, discord.SendSuccess(context.Background(), "scene S2A_1"))
	require.Len(t, message.Embeds, 1)
	assert.Equal(t, "scene S2A_1", message.Embeds[0].Description)
	assert.Equal(t, colorGreen, message.Embeds[0].Color)
}

func TestDiscord_SendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	discord := &Discord{ErrorURL: server.URL}
	err := discord.SendError(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscord_DisabledWithoutURL(t *testing.T) {
	discord := &Discord{}
	assert.NoError(t, discord.SendError(context.Background(), "boom"))
	assert.NoError(t, discord.SendSuccess(context.Background(), "ok"))
}
