package honeyguard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oarkflow/log"
)

// NotificationRegistry manages the enabled notification senders. Order of
// registration is preserved so dispatch results are stable.
type NotificationRegistry struct {
	mu      sync.RWMutex
	senders []NotificationSender
}

func NewNotificationRegistry() *NotificationRegistry {
	return &NotificationRegistry{}
}

// Register adds a sender. Nil senders (disabled channels) are ignored.
func (r *NotificationRegistry) Register(sender NotificationSender) {
	if sender == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders = append(r.senders, sender)
}

// Senders returns a snapshot of the registered senders.
func (r *NotificationRegistry) Senders() []NotificationSender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NotificationSender, len(r.senders))
	copy(out, r.senders)
	return out
}

// TwilioCredentials configure the SMS and WhatsApp channels. Empty AccountSID
// or AuthToken means the Twilio channels are disabled; that is not an error.
type TwilioCredentials struct {
	AccountSID   string `json:"accountSid"`
	AuthToken    string `json:"authToken"`
	FromNumber   string `json:"fromNumber"`
	ToNumber     string `json:"toNumber"`
	WhatsAppFrom string `json:"whatsappFrom"`
	WhatsAppTo   string `json:"whatsappTo"`
}

func (c TwilioCredentials) configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

const twilioAPIBase = "https://api.twilio.com"

// twilioClient posts to the Twilio Messages endpoint. Both the SMS and the
// WhatsApp sender share it; they differ only in address prefixes.
type twilioClient struct {
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

func newTwilioClient(creds TwilioCredentials) *twilioClient {
	return &twilioClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    twilioAPIBase,
		accountSID: creds.AccountSID,
		authToken:  creds.AuthToken,
	}
}

func (t *twilioClient) send(ctx context.Context, from, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create twilio request: %v", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send twilio message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio returned non-2xx status code: %d", resp.StatusCode)
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode twilio response: %v", err)
	}
	return result.SID, nil
}

// SMSSender delivers alerts as SMS through Twilio.
type SMSSender struct {
	client *twilioClient
	from   string
	to     string
}

// NewSMSSender returns nil when credentials are absent: the channel is
// disabled, not broken.
func NewSMSSender(creds TwilioCredentials) *SMSSender {
	if !creds.configured() || creds.FromNumber == "" || creds.ToNumber == "" {
		return nil
	}
	return &SMSSender{
		client: newTwilioClient(creds),
		from:   creds.FromNumber,
		to:     creds.ToNumber,
	}
}

func (s *SMSSender) Name() string { return "sms" }

func (s *SMSSender) Send(ctx context.Context, message string) (string, error) {
	return s.client.send(ctx, s.from, s.to, message)
}

// WhatsAppSender delivers alerts over Twilio's WhatsApp bridge.
type WhatsAppSender struct {
	client *twilioClient
	from   string
	to     string
}

func NewWhatsAppSender(creds TwilioCredentials) *WhatsAppSender {
	if !creds.configured() || creds.WhatsAppFrom == "" || creds.WhatsAppTo == "" {
		return nil
	}
	return &WhatsAppSender{
		client: newTwilioClient(creds),
		from:   "whatsapp:" + strings.TrimPrefix(creds.WhatsAppFrom, "whatsapp:"),
		to:     "whatsapp:" + strings.TrimPrefix(creds.WhatsAppTo, "whatsapp:"),
	}
}

func (s *WhatsAppSender) Name() string { return "whatsapp" }

func (s *WhatsAppSender) Send(ctx context.Context, message string) (string, error) {
	return s.client.send(ctx, s.from, s.to, message)
}

// LogSender writes the alert message to the structured log. Always available;
// useful when no Twilio credentials are configured.
type LogSender struct {
	logger log.Logger
}

func NewLogSender(logger log.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, message string) (string, error) {
	id := uuid.NewString()
	s.logger.Info().Str("notification", id).Msg(message)
	return id, nil
}
