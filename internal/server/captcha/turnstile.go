// Package captcha verifies CAPTCHA tokens with Cloudflare Turnstile.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
)

// Verifier checks a CAPTCHA token solved by the client at remoteIP.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type Turnstile struct {
	secret   string
	endpoint string
	client   *http.Client
	log      logging.Logger
}

func NewTurnstile(secret, endpoint string, client *http.Client, log logging.Logger) *Turnstile {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Turnstile{secret: secret, endpoint: endpoint, client: client, log: log.With("module", "captcha")}
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return common.ErrCaptchaRequired
	}
	if t.secret == "" {
		t.log.Error(ctx, "turnstile secret is not configured")
		return common.ErrCaptchaNotConfigured
	}

	form := url.Values{"secret": {t.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Error(ctx, "turnstile request failed", "error", err)
		return common.ErrCaptchaUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.log.Error(ctx, "turnstile returned error status", "status", resp.StatusCode, "body", string(body))
		return common.ErrCaptchaUnavailable
	}

	var out siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.log.Error(ctx, "turnstile response malformed", "error", err)
		return common.ErrCaptchaUnavailable
	}
	if !out.Success {
		t.log.Info(ctx, "captcha rejected", "codes", out.ErrorCodes, "ip", remoteIP)
		return common.ErrCaptchaFailed
	}

	return nil
}
