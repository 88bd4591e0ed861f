package results

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A busy sqlite error surfaces as 503 so clients retry; anything else is 500.
func TestStoreErrorStatus(t *testing.T) {
	cases := map[string]struct {
		driverErr  error
		retryable  bool
		wantStatus int
	}{
		"locked":     {errors.New("database is locked (5)"), true, http.StatusServiceUnavailable},
		"busy":       {errors.New("sqlite: step: SQLITE_BUSY"), true, http.StatusServiceUnavailable},
		"constraint": {errors.New("UNIQUE constraint failed: runs.id"), false, http.StatusInternalServerError},
		"closed":     {errors.New("sql: database is closed"), false, http.StatusInternalServerError},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := classify("query run", tc.driverErr)
			assert.ErrorContains(t, err, "query run")
			assert.ErrorIs(t, err, tc.driverErr)
			assert.Equal(t, tc.retryable, errors.Is(err, ErrStoreRetryable))

			msg, status := mapStoreError(err)
			assert.Equal(t, tc.wantStatus, status)
			assert.NotContains(t, msg, tc.driverErr.Error(), "driver detail must not leak")
		})
	}
}
