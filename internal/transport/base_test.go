package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcprt/pkg/logging"
)

func TestBaseMCPClient_ErrorsCarryServerName(t *testing.T) {
	c := NewStdioClient("my-server", "unused", nil, nil, logging.Discard())

	_, err := c.ListTools(context.Background())
	assert.ErrorContains(t, err, "my-server: client not connected")
}

func TestBaseMCPClient_UnnamedClientFallsBackToPlaceholder(t *testing.T) {
	c := NewStdioClient("", "unused", nil, nil, logging.Discard())

	_, err := c.ListTools(context.Background())
	assert.ErrorContains(t, err, "<unnamed>: client not connected")
}
