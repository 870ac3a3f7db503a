package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Path   string
	Sender string
}

type fakeMailAPI struct {
	mu       sync.Mutex
	calls    []recorded
	handlers map[string]func(w http.ResponseWriter, p sendPayload)
}

func newFakeMailAPI(t *testing.T) (*fakeMailAPI, *httptest.Server) {
	t.Helper()
	api := &fakeMailAPI{handlers: map[string]func(http.ResponseWriter, sendPayload){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p sendPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		api.mu.Lock()
		api.calls = append(api.calls, recorded{Path: r.URL.Path, Sender: p.SenderEmail})
		h := api.handlers[r.URL.Path]
		api.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, p)
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeMailAPI) handle(path string, h func(w http.ResponseWriter, p sendPayload)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[path] = h
}

func okResults(w http.ResponseWriter, p sendPayload) {
	results := make([]RecipientResult, 0, len(p.RecipientEmails))
	for _, e := range p.RecipientEmails {
		results = append(results, RecipientResult{Email: e, IsSuccess: true})
	}
	_ = json.NewEncoder(w).Encode(results)
}

var testMsg = Message{To: []string{"kim@example.com"}, Subject: "s", Body: "b"}

func TestBuildPolicy(t *testing.T) {
	policy := BuildPolicy("https://mail.example.com/", []string{"/a", "/b"}, []string{"reg@x.io", " ", "se@x.io", "reg@x.io"})
	assert.Equal(t, Policy{
		{Endpoint: "https://mail.example.com/a", Sender: "reg@x.io"},
		{Endpoint: "https://mail.example.com/b", Sender: "reg@x.io"},
		{Endpoint: "https://mail.example.com/a", Sender: "se@x.io"},
		{Endpoint: "https://mail.example.com/b", Sender: "se@x.io"},
	}, policy)

	assert.Len(t, BuildPolicy("https://m", nil, []string{"a@x.io"}), len(DefaultPaths))
}

func TestSendNotFoundFallsThroughPaths(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/api/v1/emails/aws-send", okResults)

	sender := NewHTTPSender(BuildPolicy(srv.URL, nil, []string{"se@x.io"}), srv.Client(), time.Second, nil)
	d, err := sender.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/v1/emails/aws-send", d.Endpoint)
	assert.Equal(t, "se@x.io", d.Sender)
	require.Len(t, d.Results, 1)
	assert.True(t, d.Results[0].IsSuccess)
	assert.Len(t, api.calls, 3)
}

func TestSendAllNotFoundStopsAtFirstSender(t *testing.T) {
	api, srv := newFakeMailAPI(t)

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a", "/b"}, []string{"reg@x.io", "se@x.io"}), srv.Client(), time.Second, nil)
	_, err := sender.Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.True(t, isNotFound(err))
	assert.Equal(t, srv.URL+"/b", Endpoint(err))
	for _, c := range api.calls {
		assert.Equal(t, "reg@x.io", c.Sender)
	}
}

func TestSendUnverifiedSenderTriesNextSender(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/a", func(w http.ResponseWriter, p sendPayload) {
		if p.SenderEmail == "reg@x.io" {
			http.Error(w, "Email address is not verified. reg@x.io", http.StatusBadRequest)
			return
		}
		okResults(w, p)
	})

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a", "/b"}, []string{"reg@x.io", "se@x.io"}), srv.Client(), time.Second, nil)
	d, err := sender.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, "se@x.io", d.Sender)
	assert.Equal(t, []recorded{{Path: "/a", Sender: "reg@x.io"}, {Path: "/a", Sender: "se@x.io"}}, api.calls)
}

func TestSendServerErrorShortCircuits(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/a", func(w http.ResponseWriter, _ sendPayload) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	api.handle("/b", okResults)

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a", "/b"}, []string{"reg@x.io", "se@x.io"}), srv.Client(), time.Second, nil)
	_, err := sender.Send(context.Background(), testMsg)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Len(t, api.calls, 1)
}

func TestSendPartialRecipientFailure(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/a", func(w http.ResponseWriter, p sendPayload) {
		_ = json.NewEncoder(w).Encode([]RecipientResult{{Email: p.RecipientEmails[0], IsSuccess: false, ErrorMessage: "mailbox full"}})
	})

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a"}, []string{"se@x.io"}), srv.Client(), time.Second, nil)
	_, err := sender.Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kim@example.com:mailbox full")
	results := Results(err)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsSuccess)
}

func TestSendNonArrayBodyIsSuccess(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/a", func(w http.ResponseWriter, _ sendPayload) {
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	})

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a"}, []string{"se@x.io"}), srv.Client(), time.Second, nil)
	d, err := sender.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Empty(t, d.Results)
}

func TestSendResultWithoutFlagIsSuccess(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/a", func(w http.ResponseWriter, p sendPayload) {
		_, _ = w.Write([]byte(`[{"email":"` + p.RecipientEmails[0] + `"}]`))
	})

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a"}, []string{"se@x.io"}), srv.Client(), time.Second, nil)
	d, err := sender.Send(context.Background(), testMsg)
	require.NoError(t, err)
	require.Len(t, d.Results, 1)
	assert.True(t, d.Results[0].IsSuccess)
	assert.Len(t, api.calls, 1)
}

func TestSendTimeout(t *testing.T) {
	api, srv := newFakeMailAPI(t)
	api.handle("/a", func(w http.ResponseWriter, p sendPayload) {
		time.Sleep(200 * time.Millisecond)
		okResults(w, p)
	})

	sender := NewHTTPSender(BuildPolicy(srv.URL, []string{"/a"}, []string{"se@x.io"}), srv.Client(), 20*time.Millisecond, nil)
	_, err := sender.Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendWithoutPolicy(t *testing.T) {
	_, err := NewHTTPSender(nil, nil, 0, nil).Send(context.Background(), testMsg)
	assert.ErrorIs(t, err, ErrNoPolicy)
}

func TestRegistrationBody(t *testing.T) {
	ev := Event{Title: "AssiWorks Opening", Location: "Seoul", Dates: "20260303T050000Z/20260303T080000Z", Timezone: "Asia/Seoul"}
	body := ev.RegistrationBody("  ", "https://example.com/cancel?token=abc")
	assert.True(t, strings.HasPrefix(body, "게스트님, AssiWorks Opening"))
	assert.Contains(t, body, "https://example.com/cancel?token=abc")
	assert.Contains(t, body, "https://calendar.google.com/calendar/render?")
	assert.Contains(t, body, "ctz=Asia%2FSeoul")
	assert.Equal(t, "AssiWorks Opening 등록이 완료되었습니다", ev.Subject())
}
