package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// InboundMessage is one user message extracted from a webhook
// delivery.
type InboundMessage struct {
	From      string // sender phone in E.164 without "+"
	Name      string // profile name, may be empty
	MessageID string
	Type      string // "text", "image", "audio", ...
	Text      string // empty unless Type is "text"
	Timestamp string
}

// webhookPayload mirrors the Cloud API webhook envelope, trimmed to
// the fields the bot consumes.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseInbound extracts user messages from a webhook body. Status
// updates are skipped; non-text messages are returned with an empty
// Text so the bot can answer with a hint.
func ParseInbound(body []byte) ([]InboundMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	if p.Object != "whatsapp_business_account" {
		return nil, nil
	}

	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := map[string]string{}
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				msg := InboundMessage{
					From:      m.From,
					Name:      names[m.From],
					MessageID: m.ID,
					Type:      m.Type,
					Timestamp: m.Timestamp,
				}
				if m.Type == "text" {
					msg.Text = m.Text.Body
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw body. An empty appSecret disables
// verification (local development).
func VerifySignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" {
		return true
	}
	sig := strings.TrimPrefix(header, "sha256=")
	if sig == header {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyChallenge handles the hub.mode/hub.verify_token subscription
// handshake; it returns the challenge to echo and whether the token
// matched.
func VerifyChallenge(verifyToken, mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && token == verifyToken && challenge != "" {
		return challenge, true
	}
	return "", false
}
