package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func openWindow(t *testing.T, s *Server, state string) authflow.Window {
	t.Helper()
	w, err := s.Open(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, w.Navigate("https://provider.example.com/auth", state))
	return w
}

func receive(t *testing.T, w authflow.Window) authflow.Message {
	t.Helper()
	select {
	case msg := <-w.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return authflow.Message{}
	}
}

func TestProviderRedirect_Success(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	w := openWindow(t, s, "st-1")

	rec := do(s, http.MethodGet, "/oauth/callback?code=abc&state=st-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "window.close()")

	assert.Equal(t, authflow.Message{Kind: authflow.MessageSuccess, Code: "abc", State: "st-1"}, receive(t, w))
}

func TestProviderRedirect_Error(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	w := openWindow(t, s, "st-1")

	rec := do(s, http.MethodGet, "/oauth/callback?error=access_denied&error_description=user+said+no&state=st-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := receive(t, w)
	assert.Equal(t, authflow.MessageError, msg.Kind)
	assert.Equal(t, "access_denied: user said no", msg.Error)
}

func TestProviderRedirect_UnknownState(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	openWindow(t, s, "st-1")

	rec := do(s, http.MethodGet, "/oauth/callback?code=abc&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWindowMessage(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	w := openWindow(t, s, "st-1")

	rec := do(s, http.MethodPost, "/oauth/message", `{"type":"success","code":"c","state":"st-1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "c", receive(t, w).Code)

	rec = do(s, http.MethodPost, "/oauth/message", `{"type":"whatever","state":"st-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, "/oauth/message", `{"type":"complete","state":"nobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshHint(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	w := openWindow(t, s, "st-1")

	rec := do(s, http.MethodPost, "/oauth/complete?state=st-1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, authflow.MessageRefreshHint, receive(t, w).Kind)
}

func TestCancel(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	w := openWindow(t, s, "st-1")

	rec := do(s, http.MethodGet, "/oauth/cancel?state=st-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case <-w.Closed():
	case <-time.After(time.Second):
		t.Fatal("window not reported closed")
	}

	rec = do(s, http.MethodGet, "/oauth/cancel?state=st-1", "")
	assert.Equal(t, http.StatusOK, rec.Code, "repeated cancel is harmless")
}

func TestClose_ForgetsState(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{}, WithMaxOpen(1))
	w := openWindow(t, s, "st-1")

	_, err := s.Open(context.Background(), "u2")
	require.ErrorIs(t, err, common.ErrSurfaceBlocked)

	w.Close()
	w.Close()
	rec := do(s, http.MethodGet, "/oauth/callback?code=abc&state=st-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err = s.Open(context.Background(), "u2")
	assert.NoError(t, err, "closing frees the slot")
}

func TestNavigate_DuplicateState(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	openWindow(t, s, "st-1")

	w, err := s.Open(context.Background(), "u2")
	require.NoError(t, err)
	assert.Error(t, w.Navigate("https://provider.example.com/auth", "st-1"))
	assert.Error(t, w.Navigate("https://provider.example.com/auth", ""))
}

func TestRun_ShutdownBlocksSurface(t *testing.T) {
	s := NewServer("127.0.0.1:0", logging.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err := s.Open(context.Background(), "u1")
	assert.ErrorIs(t, err, common.ErrSurfaceBlocked)
}

func TestHealthz(t *testing.T) {
	s := NewServer(":0", logging.NopLogger{})
	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
