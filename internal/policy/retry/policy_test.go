package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := Default()
	tests := []struct {
		name    string
		kind    crawler.FetchErrorKind
		attempt int
		want    bool
	}{
		{name: "server error first attempt", kind: crawler.FetchServerError, attempt: 1, want: true},
		{name: "timeout second attempt", kind: crawler.FetchTimeout, attempt: 2, want: true},
		{name: "server error at bound", kind: crawler.FetchServerError, attempt: 3, want: false},
		{name: "client error never", kind: crawler.FetchClientError, attempt: 1, want: false},
		{name: "network error not retryable by default", kind: crawler.FetchNetworkError, attempt: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.ShouldRetry(tt.kind, tt.attempt))
		})
	}
}

func TestNetworkErrorsOptIn(t *testing.T) {
	t.Parallel()

	p := Default()
	p.RetryableKinds = append(p.RetryableKinds, crawler.FetchNetworkError)
	assert.True(t, p.ShouldRetry(crawler.FetchNetworkError, 1))
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 6, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}, p.Schedule())
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	t.Parallel()

	tests := map[string]Policy{
		"zero attempts":    {MaxAttempts: 0, Multiplier: 2},
		"shrinking":        {MaxAttempts: 2, Multiplier: 0.5},
		"negative delay":   {MaxAttempts: 2, Multiplier: 2, BaseDelay: -time.Second},
		"retries 4xx":      {MaxAttempts: 2, Multiplier: 2, RetryableKinds: []crawler.FetchErrorKind{crawler.FetchClientError}},
	}
	for name, p := range tests {
		assert.Error(t, p.Validate(), name)
	}
}
