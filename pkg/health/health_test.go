package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"supportbot/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerCriticalComponents(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)

	dbErr := errors.New("connection refused")
	var dbDown bool
	c.RegisterDatabaseCheck(PingFunc(func(context.Context) error {
		if dbDown {
			return dbErr
		}
		return nil
	}))
	c.RegisterRedisCheck(PingFunc(func(context.Context) error { return errors.New("no redis") }))

	var seen []bool
	c.OnChange(func(h bool) { seen = append(seen, h) })

	c.RunChecks(context.Background())
	assert.True(t, c.IsSystemHealthy(), "a degraded redis does not fail the system")
	assert.Equal(t, StatusDegraded, c.GetStatus()["redis"].Status)

	dbDown = true
	c.RunChecks(context.Background())
	assert.False(t, c.IsSystemHealthy())
	assert.Equal(t, "connection refused", c.GetStatus()["database"].Error)
	assert.Equal(t, []bool{true, false}, seen)
}

func TestHTTPHandler(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)
	c.RegisterVectorIndexCheck("pgvector", PingFunc(func(context.Context) error { return nil }))
	c.RunChecks(context.Background())

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string                `json:"status"`
		Components map[string]*Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, StatusUp, body.Components["vector-pgvector"].Status)
}
