package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"margin_bot/internal/modules/health/service"
)

func TestMux_Readiness(t *testing.T) {
	st := service.NewState()
	mux := NewMux(st)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	st.SetReady(true)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMux_Healthz(t *testing.T) {
	st := service.NewState()
	st.SetWSConnected(true)
	st.TouchTick(time.Unix(1700000000, 0))

	rec := httptest.NewRecorder()
	NewMux(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"wsConnected":true`)
	assert.Contains(t, rec.Body.String(), `"lastTickUnix":1700000000`)
}

func TestState_CountsDrops(t *testing.T) {
	st := service.NewState()
	st.SetWSConnected(false)
	st.SetWSConnected(true)
	st.SetWSConnected(false)
	st.SetWSConnected(false)
	assert.Equal(t, int64(1), st.Status().WSDrops)
}
