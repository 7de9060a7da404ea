package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultTelegramBase = "https://api.telegram.org"

	// Telegram limita a ~1 mensaje/s por chat.
	telegramRatePerSec = 1
	telegramBurst      = 3
)

// Telegram implementa ports.Alerter usando la Bot API (sendMessage, Markdown).
type Telegram struct {
	http    *http.Client
	base    string
	token   string
	chatID  string
	limiter *rate.Limiter
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram crea el alerter. base vacío usa la API de producción.
func NewTelegram(base, token, chatID string) *Telegram {
	if base == "" {
		base = defaultTelegramBase
	}
	return &Telegram{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    strings.TrimRight(base, "/"),
		token:   token,
		chatID:  chatID,
		limiter: rate.NewLimiter(telegramRatePerSec, telegramBurst),
	}
}

// Enabled devuelve false si falta el token o el chat id.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// Alert envía el mensaje en Markdown. Si Telegram no puede parsear las
// entidades (un título con '_' o '*', por ejemplo) se reenvía una vez como
// texto plano. Sin configuración no hace nada.
func (t *Telegram) Alert(ctx context.Context, msg string) error {
	if !t.Enabled() {
		return nil
	}
	err := t.send(ctx, msg, "Markdown")
	if errors.Is(err, errParseEntities) {
		slog.Debug("telegram: markdown rejected, resending as plain text", "err", err)
		err = t.send(ctx, msg, "")
	}
	return err
}

var errParseEntities = errors.New("can't parse entities")

func (t *Telegram) send(ctx context.Context, msg, parseMode string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram.Alert: rate limiter: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: msg, ParseMode: parseMode})
	if err != nil {
		return fmt.Errorf("telegram.Alert: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram.Alert: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		// El error de net/http incluye la URL, que lleva el token.
		return fmt.Errorf("telegram.Alert: %w", domain.ErrTransient)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out sendMessageResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(out.Description), errParseEntities.Error()) {
		return fmt.Errorf("telegram.Alert: %s: %w", out.Description, errParseEntities)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram.Alert: status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}

// Multi reparte cada alerta entre varios alerters. Los fallos se loguean y
// no impiden el envío al resto.
type Multi []ports.Alerter

// Alert envía a todos y devuelve el primer error.
func (m Multi) Alert(ctx context.Context, msg string) error {
	var first error
	for _, a := range m {
		if err := a.Alert(ctx, msg); err != nil {
			slog.Warn("alert delivery failed", "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
