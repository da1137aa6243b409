package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"clinic-triage-backend/config"
	"clinic-triage-backend/models"
)

// WhatsAppService is the outbound delivery collaborator: it pushes text
// to the WhatsApp Cloud API. A circuit breaker guards the upstream so a
// broken Cloud API cannot pile up blocked approval flows.
type WhatsAppService struct {
	apiURL        string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	verifyToken   string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker

	statusMu        sync.RWMutex
	lastMessageTime time.Time
	dailyCount      map[string]int
}

var _ Delivery = (*WhatsAppService)(nil)

func NewWhatsAppService(cfg *config.Config) *WhatsAppService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "whatsapp-cloud-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("Breaker %s: %s -> %s", name, from, to)
		},
	})

	return &WhatsAppService{
		apiURL:        cfg.WhatsApp.APIURL,
		apiVersion:    cfg.WhatsApp.APIVersion,
		accessToken:   cfg.WhatsApp.AccessToken,
		phoneNumberID: cfg.WhatsApp.PhoneNumberID,
		verifyToken:   cfg.WhatsApp.VerifyToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker:    breaker,
		dailyCount: make(map[string]int),
	}
}

// GetVerifyToken returns the webhook verification token
func (ws *WhatsAppService) GetVerifyToken() string {
	return ws.verifyToken
}

// SendText sends a plain text message. Implements Delivery.
func (ws *WhatsAppService) SendText(ctx context.Context, to string, body string) error {
	payload := models.WhatsAppSendMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               ws.CleanPhoneNumber(to),
		Type:             "text",
		Text: &models.WhatsAppText{
			Body: body,
		},
	}
	return ws.sendRequest(ctx, payload)
}

// SendTemplateMessage sends a pre-approved template message.
func (ws *WhatsAppService) SendTemplateMessage(ctx context.Context, to string, templateName string, params []string) error {
	components := []map[string]interface{}{
		{
			"type":       "body",
			"parameters": buildTemplateParams(params),
		},
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                ws.CleanPhoneNumber(to),
		"type":              "template",
		"template": map[string]interface{}{
			"name":       templateName,
			"language":   map[string]string{"code": "en"},
			"components": components,
		},
	}
	return ws.sendRequest(ctx, payload)
}

func buildTemplateParams(params []string) []map[string]interface{} {
	templateParams := make([]map[string]interface{}, len(params))
	for i, param := range params {
		templateParams[i] = map[string]interface{}{
			"type": "text",
			"text": param,
		}
	}
	return templateParams
}

// sendRequest posts one payload to the Cloud API through the breaker.
func (ws *WhatsAppService) sendRequest(ctx context.Context, payload interface{}) error {
	_, err := ws.breaker.Execute(func() (interface{}, error) {
		return nil, ws.doSend(ctx, payload)
	})
	if err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	ws.trackSend()
	return nil
}

func (ws *WhatsAppService) doSend(ctx context.Context, payload interface{}) error {
	url := fmt.Sprintf("%s/%s/%s/messages", ws.apiURL, ws.apiVersion, ws.phoneNumberID)

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ws.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errorResp map[string]interface{}
		if err := json.Unmarshal(body, &errorResp); err == nil {
			return fmt.Errorf("WhatsApp API error: %v", errorResp)
		}
		return fmt.Errorf("WhatsApp API error: %s", string(body))
	}
	return nil
}

// CleanPhoneNumber strips non-digits so either a wa_id or a formatted
// number can be passed in.
func (ws *WhatsAppService) CleanPhoneNumber(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

func (ws *WhatsAppService) trackSend() {
	ws.statusMu.Lock()
	defer ws.statusMu.Unlock()

	ws.lastMessageTime = time.Now()
	today := time.Now().Format("2006-01-02")
	ws.dailyCount[today]++
}

// GetStatus returns the service status
func (ws *WhatsAppService) GetStatus() models.WhatsAppServiceStatus {
	ws.statusMu.RLock()
	defer ws.statusMu.RUnlock()

	today := time.Now().Format("2006-01-02")
	return models.WhatsAppServiceStatus{
		Enabled:           ws.accessToken != "" && ws.phoneNumberID != "",
		BreakerState:      ws.breaker.State().String(),
		LastMessageSent:   ws.lastMessageTime,
		MessageCountToday: ws.dailyCount[today],
	}
}
