package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/PHONE_ID/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var body sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "whatsapp", body.MessagingProduct)
		assert.Equal(t, "individual", body.RecipientType)
		assert.Equal(t, "972501111111", body.To)
		assert.Equal(t, "welcome_message", body.Template.Name)
		assert.Equal(t, "he", body.Template.Language.Code)
		require.Len(t, body.Template.Components, 1)
		assert.Equal(t, "body", body.Template.Components[0].Type)
		assert.Equal(t, []templateParameter{{Type: "text", Text: "Dana"}}, body.Template.Components[0].Parameters)

		w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"972501111111","wa_id":"972501111111"}],"messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "token", PhoneNumberID: "PHONE_ID", BaseURL: srv.URL}, time.Second, zap.NewNop())

	id, err := client.SendTemplate(t.Context(), SendMessageInput{
		PhoneNumber:  "+972501111111",
		TemplateName: "welcome_message",
		Parameters:   []string{"Dana"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", id)
}

func TestSendTemplate_NoParametersOmitsComponents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		tmpl := raw["template"].(map[string]any)
		_, ok := tmpl["components"]
		assert.False(t, ok)
		assert.Equal(t, "en", tmpl["language"].(map[string]any)["code"])
		w.Write([]byte(`{"messages":[{"id":"wamid.X"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "token", PhoneNumberID: "P", BaseURL: srv.URL}, time.Second, zap.NewNop())
	_, err := client.SendTemplate(t.Context(), SendMessageInput{PhoneNumber: "972501111111", TemplateName: "t", Language: "en"})
	require.NoError(t, err)
}

func TestSendTemplate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Template name does not exist","type":"OAuthException","code":132001}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "token", PhoneNumberID: "P", BaseURL: srv.URL}, time.Second, zap.NewNop())
	_, err := client.SendTemplate(t.Context(), SendMessageInput{PhoneNumber: "+972501111111", TemplateName: "missing"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 132001, apiErr.Code)
	assert.Equal(t, "Template name does not exist", apiErr.Message)
}

func TestSendTemplate_NotConfigured(t *testing.T) {
	client := NewClient(Config{}, time.Second, zap.NewNop())
	_, err := client.SendTemplate(t.Context(), SendMessageInput{PhoneNumber: "+972501111111", TemplateName: "t"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendTemplate_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "token", PhoneNumberID: "P", BaseURL: srv.URL, RatePerSecond: 0.001}, time.Second, zap.NewNop())
	_, err := client.SendTemplate(t.Context(), SendMessageInput{PhoneNumber: "+1", TemplateName: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = client.SendTemplate(ctx, SendMessageInput{PhoneNumber: "+1", TemplateName: "t"})
	assert.Error(t, err)
}

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body textMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text", body.Type)
		assert.Equal(t, "972501111111", body.To)
		assert.Equal(t, "thanks, we will call you", body.Text.Body)
		w.Write([]byte(`{"messages":[{"id":"wamid.T"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "token", PhoneNumberID: "P", BaseURL: srv.URL}, time.Second, zap.NewNop())
	id, err := client.SendText(t.Context(), "+972501111111", "thanks, we will call you")
	require.NoError(t, err)
	assert.Equal(t, "wamid.T", id)
}
