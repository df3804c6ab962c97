package narrative

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

func TestFallbackGenerator_PrimarySucceeds(t *testing.T) {
	primary := &stubGenerator{text: "from primary"}
	fallback := &stubGenerator{text: "from fallback"}

	text, err := FallbackGenerator{Primary: primary, Fallback: fallback}.Generate(context.Background(), domain.Follow{})
	require.NoError(t, err)
	assert.Equal(t, "from primary", text)
	assert.Zero(t, fallback.calls)
}

func TestFallbackGenerator_UsesFallbackOnError(t *testing.T) {
	primary := &stubGenerator{err: errors.New("llm down")}
	gen := FallbackGenerator{Primary: primary, Fallback: TemplateGenerator{}}

	text, err := gen.Generate(context.Background(), domain.Follow{UserName: "alice"})
	require.NoError(t, err)
	assert.Contains(t, text, "alice")
	assert.Equal(t, 1, primary.calls)
}

func TestFallbackGenerator_BothFail(t *testing.T) {
	primaryErr := errors.New("llm down")
	fallbackErr := errors.New("template broken")
	gen := FallbackGenerator{
		Primary:  &stubGenerator{err: primaryErr},
		Fallback: &stubGenerator{err: fallbackErr},
	}

	_, err := gen.Generate(context.Background(), domain.Follow{})
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, fallbackErr)
}
