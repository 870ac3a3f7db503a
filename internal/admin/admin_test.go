package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/store"
	"github.com/assiworks/opening-registration/internal/store/sqlite"
	apperrors "github.com/assiworks/opening-registration/pkg/errors"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "registrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st store.Store, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		reg := &models.Registration{
			Email:       fmt.Sprintf("user%d@example.com", i),
			Name:        fmt.Sprintf("User %d", i),
			Affiliation: "AssiWorks",
			CancelToken: fmt.Sprintf("token-%03d", i),
		}
		require.NoError(t, st.Create(context.Background(), reg))
		ids[i] = reg.ID
	}
	return ids
}

// flakyStore fails DeleteByIDs from the failAt-th call on.
type flakyStore struct {
	store.Store
	calls  int
	failAt int
}

func (f *flakyStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	f.calls++
	if f.calls >= f.failAt {
		return nil, errors.New("connection reset")
	}
	return f.Store.DeleteByIDs(ctx, ids)
}

func TestParseIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids, invalid := ParseIDs([]string{" " + a.String() + " ", "", "nope", b.String(), a.String(), "  "})
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.Equal(t, []string{"nope"}, invalid)
}

func TestDeleteReportsOnlyRemovedIDs(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, 2)
	changes := 0
	svc := NewService(st, Options{OnChange: func() { changes++ }}, nil)
	missing := uuid.New()

	result, err := svc.Delete(context.Background(), []string{ids[0].String(), missing.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0]}, result.DeletedIDs)
	assert.Equal(t, 1, changes)

	_, err = st.GetByID(context.Background(), ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetByID(context.Background(), ids[1])
	assert.NoError(t, err)

	result, err = svc.Delete(context.Background(), []string{missing.String()})
	require.NoError(t, err)
	assert.Empty(t, result.DeletedIDs)
	assert.Equal(t, 1, changes, "no change hook when nothing was removed")
}

func TestDeleteValidation(t *testing.T) {
	svc := NewService(openStore(t), Options{}, nil)

	_, err := svc.Delete(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.Delete(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.Delete(context.Background(), []string{"not-a-uuid"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDeleteChunksAndPartialFailure(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, DeleteChunkSize+20)
	flaky := &flakyStore{Store: st, failAt: 2}
	svc := NewService(flaky, Options{}, nil)

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	result, err := svc.Delete(context.Background(), raw)
	var partial *PartialDeleteError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, result.DeletedIDs, DeleteChunkSize)
	assert.Equal(t, 2, flaky.calls)

	n, err := st.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, n, "first chunk stays deleted")
}

func TestDeleteAllChunksFail(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, 1)
	svc := NewService(&flakyStore{Store: st, failAt: 1}, Options{}, nil)

	_, err := svc.Delete(context.Background(), []string{ids[0].String()})
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestSummary(t *testing.T) {
	st := openStore(t)
	seed(t, st, 3)
	_, err := st.CancelByToken(context.Background(), "token-001", time.Now())
	require.NoError(t, err)

	svc := NewService(st, Options{}, nil)
	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Aggregates.Total)
	assert.Equal(t, 1, summary.Aggregates.Cancelled)
	assert.Equal(t, 3, summary.Aggregates.Today)
	assert.Equal(t, 67, summary.Breakdown.ActivePercent)
}

func newAdminRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, nil)
	r := gin.New()
	r.GET("/registrations", h.List)
	r.GET("/registrations/summary", h.Summary)
	r.DELETE("/registrations", h.Delete)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListHandler(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, 3)
	r := newAdminRouter(NewService(st, Options{}, nil))

	w := serve(r, http.MethodGet, "/registrations?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		OK            bool             `json:"ok"`
		Registrations []map[string]any `json:"registrations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	require.Len(t, body.Registrations, 2)
	assert.Equal(t, ids[2].String(), body.Registrations[0]["id"])
	for _, key := range []string{"id", "name", "email", "affiliation", "position", "note", "cancelled_at", "created_at"} {
		assert.Contains(t, body.Registrations[0], key)
	}
	assert.NotContains(t, body.Registrations[0], "cancel_token")
}

func TestDeleteHandler(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, 3)
	r := newAdminRouter(NewService(st, Options{}, nil))

	w := serve(r, http.MethodDelete, "/registrations", `{"id":"`+ids[0].String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"deletedIds":["`+ids[0].String()+`"]}`, w.Body.String())

	w = serve(r, http.MethodDelete, "/registrations", `{"ids":["`+ids[1].String()+`","bad"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"deletedIds":["`+ids[1].String()+`"],"invalidIds":["bad"]}`, w.Body.String())

	w = serve(r, http.MethodDelete, "/registrations?id="+ids[2].String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodDelete, "/registrations", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteHandlerChunkedEmptyBodyUsesQuery(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, 1)
	r := newAdminRouter(NewService(st, Options{}, nil))

	req := httptest.NewRequest(http.MethodDelete, "/registrations?id="+ids[0].String(), io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true,"deletedIds":["`+ids[0].String()+`"]}`, w.Body.String())

	w = serve(r, http.MethodDelete, "/registrations", `{"ids":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteHandlerPartialFailure(t *testing.T) {
	st := openStore(t)
	ids := seed(t, st, DeleteChunkSize+1)
	r := newAdminRouter(NewService(&flakyStore{Store: st, failAt: 2}, Options{}, nil))

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = `"` + id.String() + `"`
	}
	w := serve(r, http.MethodDelete, "/registrations", `{"ids":[`+strings.Join(raw, ",")+`]}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body struct {
		OK         bool     `json:"ok"`
		DeletedIDs []string `json:"deletedIds"`
		Message    string   `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.OK)
	assert.Len(t, body.DeletedIDs, DeleteChunkSize)
	assert.NotEmpty(t, body.Message)
	assert.NotContains(t, w.Body.String(), "connection reset")
}
