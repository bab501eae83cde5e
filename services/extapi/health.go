package extapi

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"licensehub-engine/pkg/health"
)

// checker reports the remote API's reachability for the readiness probe. An
// open circuit breaker counts as unhealthy without touching the network.
type checker struct {
	client *Client
}

func NewHealthChecker(client *Client) health.Checker {
	return &checker{client: client}
}

func (h *checker) Name() string {
	return "license-api"
}

func (h *checker) Check(c *gin.Context) error {
	if state := h.client.BreakerState(); state == "open" {
		return fmt.Errorf("circuit breaker is open")
	}

	return h.client.HealthCheck(c.Request.Context())
}
