// Package gateway fetches raw chat messages from the relay service and
// normalizes them into the core's message type. Everything platform-specific
// stops at this boundary.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klcheung/alertledger/internal/models"
)

// Client fetches recent messages for one channel, newest first.
type Client interface {
	FetchMessages(ctx context.Context, channelID string, limit int) ([]models.Message, error)
}

// RetryConfig tunes the fetch retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used when no config is supplied.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// HTTPClient talks to the chat relay over its JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logrus.Logger
	config  RetryConfig
}

// Ensure HTTPClient implements Client at compile time.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a relay client.
func NewHTTPClient(baseURL, token string, logger *logrus.Logger, config ...RetryConfig) *HTTPClient {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		config:  cfg,
	}
}

// wireMessage is the relay's message shape. It exists only to decode the
// upstream payload; the rest of the system sees models.Message.
type wireMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
	Embeds    []wireEmbed `json:"embeds"`
}

type wireEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Fields []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
}

func (w wireMessage) normalize() models.Message {
	msg := models.Message{
		ID:        w.ID,
		ChannelID: w.ChannelID,
		Content:   w.Content,
	}
	if t, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		msg.Timestamp = t
	}
	for _, e := range w.Embeds {
		embed := models.Embed{
			Title:       e.Title,
			Description: e.Description,
			Footer:      e.Footer.Text,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, models.EmbedField{Name: f.Name, Value: f.Value})
		}
		msg.Embeds = append(msg.Embeds, embed)
	}
	return msg
}

// FetchMessages retrieves up to limit recent messages for a channel,
// retrying transient failures with exponential backoff and jitter.
func (c *HTTPClient) FetchMessages(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages?limit=%d",
		c.baseURL, url.PathEscape(channelID), limit)

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}

		msgs, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return msgs, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}
		c.logger.WithError(err).Warnf("fetch attempt %d/%d for channel %s failed, retrying in %v",
			attempt+1, c.config.MaxRetries+1, channelID, backoff)

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, c.config.MaxBackoff)
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("fetching channel %s: %w", channelID, lastErr)
}

func (c *HTTPClient) fetchOnce(ctx context.Context, endpoint string) ([]models.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}

	var wire []wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding relay response: %w", err)
	}

	msgs := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, w.normalize())
	}
	return msgs, nil
}

// StatusError is a non-200 relay response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned status %d", e.Status)
}

// isTransientError reports whether a fetch failure is worth retrying:
// network errors and 5xx/429 responses are, other HTTP statuses are not.
func isTransientError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests
	}
	return true
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}
	if maxJitter := int64(backoff / 4); maxJitter > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitter.Int64())
		}
	}
	if backoff > max {
		backoff = max
	}
	return backoff
}
