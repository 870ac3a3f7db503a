package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, bucket, key, _ string, body []byte) error {
	m.objects[bucket+"/"+key] = append([]byte(nil), body...)
	return nil
}

func newContentRouter(src Source) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(src, nil)
	r := gin.New()
	r.GET("/content", h.Get)
	r.PUT("/content", h.Put)
	return r
}

func TestGetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.md")
	require.NoError(t, os.WriteFile(path, []byte("## hero\nHello\n"), 0o644))
	r := newContentRouter(FileSource{Path: path})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/content", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"content":{"hero":{"type":"text","value":"Hello"}}}`, w.Body.String())
}

func TestGetMissingFile(t *testing.T) {
	r := newContentRouter(FileSource{Path: filepath.Join(t.TempDir(), "missing.md")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/content", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.md")
	r := newContentRouter(FileSource{Path: path})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/content", strings.NewReader("## tags\n- a\n")))
	require.Equal(t, http.StatusOK, w.Code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "## tags\n- a\n", string(data))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/content", strings.NewReader("no headings")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFileSourceSaveKeepsMode(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "content.md")
	require.NoError(t, os.WriteFile(existing, []byte("## a\nold\n"), 0o640))
	require.NoError(t, os.Chmod(existing, 0o640))

	require.NoError(t, FileSource{Path: existing}.Save(context.Background(), []byte("## a\nnew\n")))
	info, err := os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	fresh := filepath.Join(dir, "fresh.md")
	require.NoError(t, FileSource{Path: fresh}.Save(context.Background(), []byte("## a\nb\n")))
	info, err = os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestPutReadOnly(t *testing.T) {
	r := newContentRouter(FileSource{Path: filepath.Join(t.TempDir(), "c.md"), ReadOnly: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/content", strings.NewReader("## a\nb\n")))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestS3SourceRoundTrip(t *testing.T) {
	objects := &memoryObjects{objects: map[string][]byte{}}
	src := S3Source{Store: objects, Bucket: "assets", Key: "content.md"}
	r := newContentRouter(src)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/content", strings.NewReader("## hero\nHi\n")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "## hero\nHi\n", string(objects.objects["assets/content.md"]))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/content", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Content Deck `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Hi", body.Content.Text("hero", ""))
	assert.Equal(t, "s3://assets/content.md", src.Describe())
}
