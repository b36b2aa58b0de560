// Package translate sends buffered review texts to the translation endpoint
// one batch at a time and records the results.
package translate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
)

// maxResponseBytes caps how much of a translation response is read.
const maxResponseBytes = 1 << 20

// Request is the JSON body posted for each text.
type Request struct {
	InputLang  string `json:"input_lang"`
	OutputLang string `json:"output_lang"`
	Text       string `json:"text"`
}

// Client posts single texts to the translation endpoint through a circuit
// breaker.
type Client struct {
	endpoint   string
	inputLang  string
	outputLang string
	http       *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewClient builds a client whose connect, response-header and overall
// request timeouts are all cfg.RequestTimeout. breaker may be nil.
func NewClient(cfg config.TranslateConfig, breaker *resilience.CircuitBreaker) *Client {
	timeout := cfg.RequestTimeout
	return &Client{
		endpoint:   cfg.Endpoint,
		inputLang:  cfg.InputLang,
		outputLang: cfg.OutputLang,
		breaker:    breaker,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				ResponseHeaderTimeout: timeout,
				MaxIdleConns:          200,
				MaxIdleConnsPerHost:   200,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Translate posts text tagged with id and returns the response body. A non-200
// answer is an ErrTranslationStatus AppError carrying the status code; any
// failure to get an answer wraps ErrTranslationTransport.
func (c *Client) Translate(ctx context.Context, id, text string) (string, error) {
	var out string
	call := func() error {
		var err error
		out, err = c.do(ctx, id, text)
		return err
	}
	if c.breaker == nil {
		return out, call()
	}
	return out, c.breaker.Execute(call)
}

func (c *Client) do(ctx context.Context, id, text string) (string, error) {
	body, err := json.Marshal(Request{InputLang: c.inputLang, OutputLang: c.outputLang, Text: text})
	if err != nil {
		return "", fmt.Errorf("encoding request for %s: %w", id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Text-Id", id)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", apperrors.ErrTranslationTransport, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", apperrors.Newf(apperrors.ErrTranslationStatus, resp.StatusCode, "text %s: status %d", id, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading response for %s: %w", apperrors.ErrTranslationTransport, id, err)
	}
	return strings.TrimSpace(string(data)), nil
}
