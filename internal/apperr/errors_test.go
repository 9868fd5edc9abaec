package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("missing %s", "phone"), http.StatusBadRequest},
		{"not found", NotFound("job %s not found", "j-1"), http.StatusNotFound},
		{"conflict", Conflict("illegal transition"), http.StatusConflict},
		{"upstream", Upstream(errors.New("dial tcp: refused"), "failed to load job"), http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("confirm payment: %w", Conflict("job already paid"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, Is(err, KindConflict))
	assert.False(t, Is(err, KindNotFound))
	assert.False(t, Is(nil, KindConflict))
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("throughput exceeded")
	err := Upstream(cause, "failed to create job")

	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Contains(t, err.Error(), "failed to create job")
	assert.Contains(t, Detail(err), "throughput exceeded")
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Upstream(nil, "ignored"))
}
