package utils_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"airdropbot/internal/utils"
)

func TestNewWebhookSecret(t *testing.T) {
	allowed := regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

	for _, n := range []int{0, 1, 16, 500} {
		s, err := utils.NewWebhookSecret(n)
		require.NoError(t, err)
		require.Regexp(t, allowed, s)
	}

	a, _ := utils.NewWebhookSecret(32)
	b, _ := utils.NewWebhookSecret(32)
	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
}
