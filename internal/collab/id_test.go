package collab

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDProviderIssuesRandomIdentifiers(t *testing.T) {
	provider := NewUUIDProvider()

	first, err := provider.NewID()
	require.NoError(t, err)
	second, err := provider.NewID()
	require.NoError(t, err)

	for _, raw := range []string{first, second} {
		parsed, parseErr := uuid.Parse(raw)
		require.NoError(t, parseErr)
		require.Equal(t, uuid.Version(4), parsed.Version())
	}
	require.NotEqual(t, first, second)
}
