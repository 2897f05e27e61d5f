package app

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptEndpointURI(t *testing.T) {
	p := NewPrompter(strings.NewReader("y\nmongodb://db.internal:27017\n"), io.Discard)

	endpoint, err := p.PromptEndpoint("source")
	require.NoError(t, err)
	assert.Equal(t, "mongo", endpoint.Type)
	assert.Equal(t, "mongodb://db.internal:27017", endpoint.URI)
}

func TestPromptEndpointFields(t *testing.T) {
	input := strings.Join([]string{
		"maybe", // re-asked
		"n",
		"db.internal",
		"not-a-port", // re-asked
		"27018",
		"backup",
		"s3cret",
		"",
	}, "\n") + "\n"
	p := NewPrompter(strings.NewReader(input), io.Discard)

	endpoint, err := p.PromptEndpoint("source")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", endpoint.Host)
	assert.Equal(t, 27018, endpoint.Port)
	assert.Equal(t, "backup", endpoint.Username)
	assert.Equal(t, "s3cret", endpoint.Password)
	assert.Equal(t, "admin", endpoint.AuthDatabase)
}

func TestPromptEndpointEOF(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), io.Discard)

	_, err := p.PromptEndpoint("source")
	require.ErrorIs(t, err, io.EOF)
}
