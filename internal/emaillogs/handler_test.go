package emaillogs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assiworks/opening-registration/internal/notify"
	"github.com/assiworks/opening-registration/internal/registrations"
	"github.com/assiworks/opening-registration/internal/store/sqlite"
)

type okNotifier struct{ sent int }

func (n *okNotifier) Send(_ context.Context, msg notify.Message) (*notify.Delivery, error) {
	n.sent++
	return &notify.Delivery{Endpoint: "https://mail.test/email/aws-send", Sender: "se@aifactory.page"}, nil
}

func setup(t *testing.T) (*gin.Engine, *registrations.Service, *okNotifier) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "registrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	notifier := &okNotifier{}
	svc := registrations.NewService(st, notifier, nil, registrations.Options{}, nil)
	h := NewHandler(st, svc, "https://event.example.com", nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/email-logs", h.List)
	r.POST("/email-logs/resend", h.Resend)
	return r, svc, notifier
}

func TestListAndResend(t *testing.T) {
	r, svc, notifier := setup(t)
	res, err := svc.Register(context.Background(), registrations.RegisterInput{Email: "a@example.com", Name: "Kim Minji"}, "https://event.example.com")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	body := `{"registration_id":"` + res.Registration.ID.String() + `"}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email-logs/resend", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, notifier.sent)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/email-logs?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		OK        bool             `json:"ok"`
		EmailLogs []map[string]any `json:"emailLogs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.OK)
	require.Len(t, out.EmailLogs, 1)
	assert.Equal(t, "sent", out.EmailLogs[0]["status"])
	assert.EqualValues(t, 0, out.EmailLogs[0]["attempt"])
}

func TestResendErrors(t *testing.T) {
	r, svc, _ := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email-logs/resend", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email-logs/resend", strings.NewReader(`{"registration_id":"`+uuid.NewString()+`"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	res, err := svc.Register(context.Background(), registrations.RegisterInput{Email: "a@example.com", Name: "Kim Minji"}, "https://event.example.com")
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), res.Registration.CancelToken)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email-logs/resend", strings.NewReader(`{"registration_id":"`+res.Registration.ID.String()+`"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
