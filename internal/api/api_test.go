package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/ledger"
	"github.com/starford/webring/internal/moderation"
	"github.com/starford/webring/internal/photos"
	"github.com/starford/webring/internal/registry"
	"github.com/starford/webring/internal/storage"
	"github.com/starford/webring/internal/testutil"
)

const testSecret = "hunter2-but-longer"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

type testEnv struct {
	svc      *moderation.Service
	router   http.Handler
	photoDir string
}

// newTestEnv sets up a temp data dir, SQLite index, service and router.
// events, if non-nil, is mounted at /admin/events.
func newTestEnv(t *testing.T, events http.Handler) testEnv {
	t.Helper()

	_, files := testutil.TestDataDir(t)
	reg := registry.NewStore(files, testutil.RegistryFile, registry.NewCodec("", ""))
	queue := ledger.NewQueue(files, testutil.LedgerFile)
	svc := moderation.NewService(queue, reg, moderation.WithIndex(testutil.TestDB(t)))

	photoDir := t.TempDir()
	photoFiles, err := storage.NewFS(photoDir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	router := NewRouter(svc, RouterConfig{
		Guard:  moderation.NewGuard(testSecret),
		Events: events,
		Photos: photos.NewStore(photoFiles),
	})
	return testEnv{svc: svc, router: router, photoDir: photoDir}
}

func (e testEnv) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if admin {
		req.Header.Set(DefaultAdminHeader, testSecret)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestSubmitAndListPending(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/submissions", map[string]string{
		"name":        "Jane Doe",
		"website":     "https://jane.dev",
		"connections": "bob, carol,",
	}, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[SubmitResponse](t, w); got.ID != "jane-doe" || !got.Success {
		t.Errorf("submit response = %+v", got)
	}

	w = env.do(t, http.MethodGet, "/admin/submissions", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	subs := decode[SubmissionsResponse](t, w).Submissions
	if len(subs) != 1 || subs[0].ID != "jane-doe" {
		t.Fatalf("submissions = %+v", subs)
	}
	if len(subs[0].Connections) != 2 {
		t.Errorf("connections = %v, want [bob carol]", subs[0].Connections)
	}
}

func TestSubmitMissingFields(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []map[string]string{
		{"name": "Jane"},
		{"website": "https://jane.dev"},
		{"name": "  ", "website": "https://jane.dev"},
	} {
		w := env.do(t, http.MethodPost, "/submissions", body, false)
		if w.Code != http.StatusBadRequest {
			t.Errorf("submit %v = %d, want 400", body, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	env := newTestEnv(t, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/admin/submissions"},
		{http.MethodPost, "/admin/submissions/resolve"},
		{http.MethodGet, "/admin/members"},
		{http.MethodPost, "/admin/members"},
		{http.MethodPut, "/admin/members"},
		{http.MethodDelete, "/admin/members/jane-doe"},
		{http.MethodPost, "/admin/photos"},
	}
	for _, rt := range routes {
		for _, secret := range []string{"", "wrong"} {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			if secret != "" {
				req.Header.Set(DefaultAdminHeader, secret)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s with %q = %d, want 401", rt.method, rt.path, secret, w.Code)
			}
		}
	}
}

func TestCustomAdminHeader(t *testing.T) {
	_, files := testutil.TestDataDir(t)
	svc := moderation.NewService(
		ledger.NewQueue(files, testutil.LedgerFile),
		registry.NewStore(files, testutil.RegistryFile, registry.NewCodec("", "")),
	)
	router := NewRouter(svc, RouterConfig{Guard: moderation.NewGuard(testSecret), AdminHeader: "X-Moderator-Key"})

	req := httptest.NewRequest(http.MethodGet, "/admin/submissions", nil)
	req.Header.Set(DefaultAdminHeader, testSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("default header = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/submissions", nil)
	req.Header.Set("X-Moderator-Key", testSecret)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("custom header = %d, want 200", w.Code)
	}
}

func TestResolvePromoteWithAlias(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/submissions", map[string]string{"name": "Jane Doe", "website": "https://jane.dev"}, false)
	env.do(t, http.MethodPost, "/submissions", map[string]string{"name": "Bob", "website": "https://bob.dev"}, false)

	w := env.do(t, http.MethodPost, "/admin/submissions/resolve", ResolveRequest{ID: "jane-doe", Action: "Approve"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[ResolveResponse](t, w)
	if !res.Success || res.Action != "approve" || res.Remaining != 1 {
		t.Errorf("resolve response = %+v", res)
	}

	w = env.do(t, http.MethodGet, "/members", nil, false)
	members := decode[MembersResponse](t, w).Members
	if len(members) != 1 || members[0].ID != "jane-doe" || members[0].Program != "" {
		t.Errorf("members = %+v", members)
	}
}

func TestResolveErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/submissions", map[string]string{"name": "Jane Doe", "website": "https://jane.dev"}, false)

	w := env.do(t, http.MethodPost, "/admin/submissions/resolve", ResolveRequest{ID: "jane-doe", Action: "archive"}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown action = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/admin/submissions/resolve", ResolveRequest{ID: "jane-doe", Action: "reject"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("reject = %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/admin/submissions/resolve", ResolveRequest{ID: "jane-doe", Action: "reject"}, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("second reject = %d, want 404", w.Code)
	}
	if body := decode[errResponse](t, w); body.Error == "" {
		t.Error("error body is empty")
	}
}

func TestMemberCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	jane := map[string]any{"id": "jane-doe", "name": "Jane Doe", "website": "https://jane.dev", "program": "CS"}
	w := env.do(t, http.MethodPost, "/admin/members", jane, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/admin/members", jane, true)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
	w = env.do(t, http.MethodPost, "/admin/members", map[string]any{"id": "Bad Id", "name": "x", "website": "y"}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid create = %d, want 400", w.Code)
	}

	// Full replacement clears omitted fields.
	w = env.do(t, http.MethodPut, "/admin/members", map[string]any{
		"id": "jane-doe", "name": "Jane Doe", "website": "https://jane.dev", "twitter": "janedoe",
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodGet, "/members/jane-doe", nil, false)
	got := decode[MemberDetail](t, w)
	if got.Twitter != "janedoe" || got.Program != "" {
		t.Errorf("after update = %+v", got)
	}

	// Rename through originalId.
	w = env.do(t, http.MethodPut, "/admin/members", map[string]any{
		"originalId": "jane-doe", "id": "jane", "name": "Jane", "website": "https://jane.dev",
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodGet, "/members/jane-doe", nil, false); w.Code != http.StatusNotFound {
		t.Errorf("old id = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPut, "/admin/members", map[string]any{"id": "ghost", "name": "G", "website": "https://g.dev"}, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}

	if w = env.do(t, http.MethodDelete, "/admin/members/jane", nil, true); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w = env.do(t, http.MethodDelete, "/admin/members/jane", nil, true); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestUpdateWithIfMatch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/admin/members", map[string]any{"id": "bob", "name": "Bob", "website": "https://bob.dev"}, true)

	w := env.do(t, http.MethodGet, "/admin/members", nil, true)
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `"`) || len(etag) < 3 {
		t.Fatalf("ETag = %q", etag)
	}

	put := func(name string) int {
		raw, _ := json.Marshal(map[string]any{"id": "bob", "name": name, "website": "https://bob.dev"})
		req := httptest.NewRequest(http.MethodPut, "/admin/members", bytes.NewReader(raw))
		req.Header.Set(DefaultAdminHeader, testSecret)
		req.Header.Set("If-Match", etag)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w.Code
	}
	if code := put("Bobby"); code != http.StatusOK {
		t.Fatalf("update with fresh ETag = %d", code)
	}
	if code := put("Robert"); code != http.StatusConflict {
		t.Errorf("update with stale ETag = %d, want 409", code)
	}
}

func TestGetMemberAndSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/admin/members", map[string]any{"id": "jane-doe", "name": "Jane Doe", "website": "https://jane.dev", "program": "Physics"}, true)
	env.do(t, http.MethodPost, "/admin/members", map[string]any{"id": "bob", "name": "Bob", "website": "https://bob.dev", "connections": []string{"jane-doe"}}, true)

	w := env.do(t, http.MethodGet, "/members/jane-doe", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	d := decode[MemberDetail](t, w)
	if len(d.ConnectedFrom) != 1 || d.ConnectedFrom[0] != "bob" {
		t.Errorf("connectedFrom = %v", d.ConnectedFrom)
	}

	w = env.do(t, http.MethodGet, "/members/search?q=physics", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	hits := decode[MembersResponse](t, w).Members
	if len(hits) != 1 || hits[0].ID != "jane-doe" {
		t.Errorf("hits = %+v", hits)
	}

	w = env.do(t, http.MethodGet, "/members/search?q=zzz", nil, false)
	if !strings.Contains(w.Body.String(), `"members":[]`) {
		t.Errorf("empty search body = %s", w.Body.String())
	}

	if w = env.do(t, http.MethodGet, "/members/search", nil, false); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
	if w = env.do(t, http.MethodGet, "/members/nobody", nil, false); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.ErrInvalidInput, http.StatusBadRequest},
		{apperr.ErrUnauthorized, http.StatusUnauthorized},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrConflict, http.StatusConflict},
		{apperr.ErrBusy, http.StatusServiceUnavailable},
		{apperr.ErrStorage, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		writeError(w, httptest.NewRequest(http.MethodGet, "/", nil), "test", c.err)
		if w.Code != c.code {
			t.Errorf("%v = %d, want %d", c.err, w.Code, c.code)
		}
		if c.code == http.StatusServiceUnavailable && w.Header().Get("Retry-After") != "1" {
			t.Errorf("busy Retry-After = %q", w.Header().Get("Retry-After"))
		}
		if c.code == http.StatusInternalServerError && !strings.Contains(w.Body.String(), "internal error") {
			t.Errorf("internal body = %s", w.Body.String())
		}
	}
}

// SSE endpoint tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestEvents_AdminProtected(t *testing.T) {
	env := newTestEnv(t, sseStub())

	req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("events no secret = %d, want 401", w.Code)
	}
}

func TestEvents_ValidSecret(t *testing.T) {
	env := newTestEnv(t, sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/admin/events", nil).WithContext(ctx)
	req.Header.Set(DefaultAdminHeader, testSecret)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("events with secret = %d, want 200", w.Code)
	}
}

// Photo tests.

func uploadPhoto(t *testing.T, router http.Handler, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(DefaultAdminHeader, testSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServePhoto(t *testing.T) {
	env := newTestEnv(t, nil)

	w := uploadPhoto(t, env.router, "me.png", pngBytes, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[PhotoUploadResponse](t, w)
	if resp.Filename != "me.png" || resp.URL != "/photos/me.png" || resp.Size != int64(len(pngBytes)) {
		t.Errorf("upload response = %+v", resp)
	}

	data, err := os.ReadFile(filepath.Join(env.photoDir, "me.png"))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Error("content mismatch")
	}

	req := httptest.NewRequest(http.MethodGet, "/photos/me.png", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("serve = %d, want 200", w.Code)
	}
}

func TestUploadPhotoNamedAfterMember(t *testing.T) {
	env := newTestEnv(t, nil)

	w := uploadPhoto(t, env.router, "IMG_0042.PNG", pngBytes, map[string]string{"id": "jane-doe"})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decode[PhotoUploadResponse](t, w); resp.URL != "/photos/jane-doe.png" {
		t.Errorf("url = %q", resp.URL)
	}

	w = uploadPhoto(t, env.router, "x.png", pngBytes, map[string]string{"id": "../etc"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", w.Code)
	}
}

func TestUploadPhotoRejectsNonImages(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := uploadPhoto(t, env.router, "notes.txt", []byte("hello"), nil); w.Code != http.StatusBadRequest {
		t.Errorf("txt extension = %d, want 400", w.Code)
	}
	if w := uploadPhoto(t, env.router, "fake.png", []byte("plain text pretending"), nil); w.Code != http.StatusBadRequest {
		t.Errorf("non-image content = %d, want 400", w.Code)
	}
	big := append(append([]byte(nil), pngBytes...), bytes.Repeat([]byte{1}, photos.MaxBytes)...)
	if w := uploadPhoto(t, env.router, "big.png", big, nil); w.Code != http.StatusBadRequest {
		t.Errorf("oversized = %d, want 400", w.Code)
	}
}

func TestListPhotos(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := uploadPhoto(t, env.router, "me.png", pngBytes, nil); w.Code != http.StatusCreated {
		t.Fatalf("upload = %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/admin/photos", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	resp := decode[PhotosResponse](t, w)
	if len(resp.Photos) != 1 || resp.Photos[0].URL != "/photos/me.png" {
		t.Errorf("photos = %+v", resp.Photos)
	}

	if w := env.do(t, http.MethodGet, "/admin/photos", nil, false); w.Code != http.StatusUnauthorized {
		t.Errorf("list without secret = %d, want 401", w.Code)
	}
}

func TestUploadPhoto_InvalidFilename(t *testing.T) {
	env := newTestEnv(t, nil)
	// multipart may reduce "../" to a base name, so also verify nothing lands outside.
	w := uploadPhoto(t, env.router, "../escape.png", pngBytes, nil)
	if w.Code == http.StatusCreated {
		if _, err := os.Stat(filepath.Join(env.photoDir, "..", "escape.png")); err == nil {
			t.Error("file escaped photo directory")
		}
	}
}

func TestUploadPhoto_MissingFileField(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(DefaultAdminHeader, testSecret)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestServePhoto_NotFoundAndTraversal(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/photos/nope.png", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing photo = %d, want 404", w.Code)
	}

	for _, name := range []string{"../members.ts", "..%2Fmembers.ts", ".hidden.png"} {
		req := httptest.NewRequest(http.MethodGet, "/photos/"+name, nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		// chi may not route the traversal paths at all (404), or the handler rejects (400).
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}
