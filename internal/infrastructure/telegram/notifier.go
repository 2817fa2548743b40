package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier publishes offers to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Publisher = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase points the notifier at another Bot API host.
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = strings.TrimRight(base, "/")
	return n
}

// Configured reports whether both token and chat are set.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// Publish posts one offer as an HTML message.
func (n *Notifier) Publish(ctx context.Context, offer domain.StoredOffer) error {
	if !n.Configured() || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatOffer(offer))
	form.Set("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && body.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, body.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !body.OK {
		return fmt.Errorf("telegram rejected message: %s", body.Description)
	}
	return nil
}

// FormatOffer renders the message body.
func FormatOffer(offer domain.StoredOffer) string {
	o := offer.Offer
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(strings.TrimSpace(o.Title)))
	if o.Store != "" {
		fmt.Fprintf(&b, "Loja: %s\n", html.EscapeString(o.Store))
	}
	if o.OriginalPrice.Valid && o.Price.Valid && o.OriginalPrice.Decimal.GreaterThan(o.Price.Decimal) {
		fmt.Fprintf(&b, "De: <s>%s</s>\n", FormatBRL(o.OriginalPrice.Decimal))
	}
	if o.Price.Valid {
		fmt.Fprintf(&b, "Por: <b>%s</b>", FormatBRL(o.Price.Decimal))
		discount := offer.DiscountPercent
		if !discount.Valid {
			if d, ok := o.Discount(); ok {
				discount = decimal.NewNullDecimal(d)
			}
		}
		if discount.Valid && discount.Decimal.IsPositive() {
			fmt.Fprintf(&b, " (%s%% OFF)", discount.Decimal.Round(0).String())
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n<a href=\"%s\">Ver oferta</a>", html.EscapeString(o.AffiliateURL))
	return b.String()
}

// FormatBRL renders a price as "R$ 1.234,56".
func FormatBRL(v decimal.Decimal) string {
	fixed := v.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if v.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, grouped.String(), frac)
}
