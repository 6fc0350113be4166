package gateway

import (
	"context"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/klcheung/alertledger/internal/models"
)

// CircuitBreakerClient wraps a Client with circuit breaker functionality, so
// a misbehaving relay stops being hammered while the tracker keeps serving
// reads from memory.
type CircuitBreakerClient struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerClient implements Client at compile time.
var _ Client = (*CircuitBreakerClient)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerClient creates a CircuitBreakerClient with sensible defaults.
func NewCircuitBreakerClient(client Client) *CircuitBreakerClient {
	return NewCircuitBreakerClientWithSettings(client, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerClientWithSettings creates a CircuitBreakerClient with custom settings.
func NewCircuitBreakerClientWithSettings(client Client, settings CircuitBreakerSettings) *CircuitBreakerClient {
	gbSettings := gobreaker.Settings{
		Name:        "GatewayCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// FetchMessages wraps the underlying fetch with the circuit breaker.
func (c *CircuitBreakerClient) FetchMessages(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.FetchMessages(ctx, channelID, limit)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]models.Message), nil
}
