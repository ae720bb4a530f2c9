// Package notify delivers alert messages to the user's phone.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

// ErrDelivery marks a message the channel did not accept.
var ErrDelivery = errors.New("notification not delivered")

// Channel is a push transport. One call is one delivery attempt.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// BarkChannel pushes a message by requesting GET <base>/<escaped message>,
// the URL scheme used by Bark-style push servers.
type BarkChannel struct {
	baseURL string
	http    *http.Client
}

// NewBarkChannel returns a channel for baseURL, usually
// https://api.day.app/<device key>.
func NewBarkChannel(baseURL string, timeout time.Duration) *BarkChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BarkChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *BarkChannel) Name() string { return "bark" }

func (c *BarkChannel) Send(ctx context.Context, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(message), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}

// NopChannel drops every message. It stands in when no push URL is set.
type NopChannel struct {
	log logger.Logger
}

func NewNopChannel(log logger.Logger) *NopChannel {
	return &NopChannel{log: log}
}

func (c *NopChannel) Name() string { return "nop" }

func (c *NopChannel) Send(_ context.Context, message string) error {
	c.log.Debug("notification channel disabled, message dropped",
		logger.String("message", oneLine(message)))
	return nil
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
