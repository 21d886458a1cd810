package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/555000/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var p map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "whatsapp", p["messaging_product"])
		assert.Equal(t, "2348012345678", p["to"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.X"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "555000", 10*time.Second)
	id, err := c.SendText(context.Background(), "2348012345678", "hello")
	require.NoError(t, err)
	assert.Equal(t, "wamid.X", id)
}

func TestSendTextPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "recipient not in allowed list", "code": 131030},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "555000", 10*time.Second)
	_, err := c.SendText(context.Background(), "2348012345678", "hello")
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestSendTextTransientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"server error"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "555000", 10*time.Second)
	_, err := c.SendText(context.Background(), "2348012345678", "hello")
	assert.ErrorIs(t, err, ErrTransient)
}

const sampleWebhook = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"changes": [{
			"field": "messages",
			"value": {
				"contacts": [{"wa_id": "2348012345678", "profile": {"name": "Ada"}}],
				"messages": [
					{"from": "2348012345678", "id": "wamid.1", "timestamp": "1717243200",
					 "type": "text", "text": {"body": "I want remote developer jobs"}},
					{"from": "2348012345678", "id": "wamid.2", "timestamp": "1717243201",
					 "type": "image"}
				]
			}
		}]
	}]
}`

func TestParseInbound(t *testing.T) {
	msgs, err := ParseInbound([]byte(sampleWebhook))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "2348012345678", msgs[0].From)
	assert.Equal(t, "Ada", msgs[0].Name)
	assert.Equal(t, "text", msgs[0].Type)
	assert.Equal(t, "I want remote developer jobs", msgs[0].Text)
	assert.Equal(t, "wamid.1", msgs[0].MessageID)

	assert.Equal(t, "image", msgs[1].Type)
	assert.Empty(t, msgs[1].Text, "non-text messages carry no body")
}

func TestParseInboundIgnoresOtherObjects(t *testing.T) {
	msgs, err := ParseInbound([]byte(`{"object": "page", "entry": []}`))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	secret := "app-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature(secret, body, header))
	assert.False(t, VerifySignature(secret, body, "sha256=deadbeef"))
	assert.False(t, VerifySignature(secret, body, "no-prefix"))
	assert.True(t, VerifySignature("", body, ""), "empty secret disables verification")
}

func TestVerifyChallenge(t *testing.T) {
	challenge, ok := VerifyChallenge("my-token", "subscribe", "my-token", "12345")
	assert.True(t, ok)
	assert.Equal(t, "12345", challenge)

	_, ok = VerifyChallenge("my-token", "subscribe", "wrong", "12345")
	assert.False(t, ok)

	_, ok = VerifyChallenge("my-token", "unsubscribe", "my-token", "12345")
	assert.False(t, ok)
}
