package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinURLTrailingSlashToleranceIsByteIdentical(t *testing.T) {
	withSlash, err := JoinURL("https://api.anthropic.com/", "v1", "messages")
	require.NoError(t, err)
	withoutSlash, err := JoinURL("https://api.anthropic.com", "v1", "messages")
	require.NoError(t, err)

	assert.Equal(t, withoutSlash, withSlash)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", withSlash)
}

func TestJoinURLRejectsInvalidBase(t *testing.T) {
	_, err := JoinURL("://not-a-url", "v1")
	assert.Error(t, err)
}
