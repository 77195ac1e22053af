package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"jobvault/internal/server/auth"
	"jobvault/internal/server/config"
	"jobvault/internal/server/cryptox"
	"jobvault/internal/server/database"
	"jobvault/internal/server/service"
	"jobvault/internal/server/storage"

	"github.com/labstack/echo/v4"
)

// --- In-memory record stores ---

type fakeFiles struct {
	mu      sync.Mutex
	records map[string]*database.File
}

func (f *fakeFiles) Create(_ context.Context, r *database.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeFiles) GetByID(_ context.Context, id string) (*database.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, database.ErrFileNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeFiles) ListByOwner(_ context.Context, ownerID string) ([]*database.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.File
	for _, r := range f.records {
		if r.OwnerID == ownerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFiles) Touch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return database.ErrFileNotFound
	}
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return database.ErrFileNotFound
	}
	delete(f.records, id)
	return nil
}

type fakeJobs struct {
	jobs map[string]*database.Job
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*database.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	return j, nil
}

type fakeLinks struct {
	mu    sync.Mutex
	pairs map[string]bool
}

func (f *fakeLinks) Link(_ context.Context, fileID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fileID + "|" + jobID
	if f.pairs[key] {
		return database.ErrAlreadyLinked
	}
	f.pairs[key] = true
	return nil
}

func (f *fakeLinks) Unlink(_ context.Context, fileID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fileID + "|" + jobID
	if !f.pairs[key] {
		return database.ErrNotLinked
	}
	delete(f.pairs, key)
	return nil
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*database.User
}

func (f *fakeUsers) Create(_ context.Context, u *database.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[u.Email]; ok {
		return database.ErrEmailTaken
	}
	cp := *u
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*database.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// --- Test server ---

type testServer struct {
	e    *echo.Echo
	jobs *fakeJobs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewFileSystemStore(t.TempDir())
	blobs, err := cryptox.NewBlobCipher(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cookies, err := auth.NewCookieCipher([]byte("api test secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	codec := auth.NewTokenCodec([]byte("api signing secret"))

	jobs := &fakeJobs{jobs: map[string]*database.Job{}}
	vault := service.NewVaultService(
		&fakeFiles{records: map[string]*database.File{}},
		jobs,
		&fakeLinks{pairs: map[string]bool{}},
		store, blobs, 5*1024*1024,
	)
	users := service.NewUserService(&fakeUsers{byEmail: map[string]*database.User{}})

	handler := NewHandler(vault, users, codec, cookies, nil)
	cfg := &config.Config{RateLimitRPS: 1000, RateLimitBurst: 1000}
	return &testServer{e: SetupRouter(handler, cookies, codec, cfg), jobs: jobs}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return ts.do(req)
}

// session registers an account and logs in, returning the session cookie.
func (ts *testServer) session(t *testing.T, email string) *http.Cookie {
	t.Helper()
	creds := `{"email":"` + email + `","password":"correct horse battery"}`

	if rec := ts.doJSON(http.MethodPost, "/users", creds, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}
	rec := ts.doJSON(http.MethodPost, "/users/login", creds, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func (ts *testServer) upload(t *testing.T, cookie *http.Cookie, fileType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "resume.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteField("fileType", fileType); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return ts.do(req)
}

func uploadedID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		FileID string `json:"fileId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse upload response: %v", err)
	}
	if body.FileID == "" {
		t.Fatal("upload response missing fileId")
	}
	return body.FileID
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Author (Jane) >>\nendobj\n%%EOF\n")

// --- Sessions ---

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	t.Run("gated routes reject anonymous requests", func(t *testing.T) {
		for _, path := range []string{"/users/check", "/files/all"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if rec := ts.do(req); rec.Code != http.StatusUnauthorized {
				t.Errorf("GET %s without cookie returned %d", path, rec.Code)
			}
		}
	})

	cookie := ts.session(t, "jane@example.com")

	t.Run("session cookie opens the gate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/check", nil)
		req.AddCookie(cookie)
		rec := ts.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("check returned %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "userId") {
			t.Errorf("check body = %s", rec.Body.String())
		}
	})

	t.Run("garbage cookie is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/check", nil)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "not-an-encrypted-token"})
		if rec := ts.do(req); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		creds := `{"email":"jane@example.com","password":"other"}`
		if rec := ts.doJSON(http.MethodPost, "/users", creds, nil); rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		creds := `{"email":"jane@example.com","password":"wrong"}`
		if rec := ts.doJSON(http.MethodPost, "/users/login", creds, nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("logout expires the cookie", func(t *testing.T) {
		rec := ts.doJSON(http.MethodPost, "/users/logout", "", cookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("logout returned %d", rec.Code)
		}
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.CookieName && c.MaxAge >= 0 {
				t.Error("logout did not expire the session cookie")
			}
		}
	})
}

// --- Files over HTTP ---

func TestFileRoutes(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.session(t, "owner@example.com")
	stranger := ts.session(t, "stranger@example.com")

	rec := ts.upload(t, owner, "Resume", samplePDF)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	id := uploadedID(t, rec)

	t.Run("upload rejects non-PDF content", func(t *testing.T) {
		if rec := ts.upload(t, owner, "Resume", []byte("not a pdf")); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("upload rejects unknown file type", func(t *testing.T) {
		if rec := ts.upload(t, owner, "Portfolio", samplePDF); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("listing shows the stored file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/files/all", nil)
		req.AddCookie(owner)
		rec := ts.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("list returned %d", rec.Code)
		}
		var infos []service.FileInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
			t.Fatalf("failed to parse listing: %v", err)
		}
		if len(infos) != 1 || infos[0].ID != id {
			t.Errorf("unexpected listing %+v", infos)
		}
	})

	t.Run("download serves the archive as an attachment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/files/"+id, nil)
		req.AddCookie(owner)
		rec := ts.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("download returned %d: %s", rec.Code, rec.Body.String())
		}
		disposition := rec.Header().Get(echo.HeaderContentDisposition)
		if !strings.Contains(disposition, "resume.zip") {
			t.Errorf("content disposition = %q", disposition)
		}
		body, _ := io.ReadAll(rec.Body)
		if !bytes.HasPrefix(body, []byte("PK")) {
			t.Error("download body is not a zip archive")
		}
	})

	t.Run("foreign download is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/files/"+id, nil)
		req.AddCookie(stranger)
		if rec := ts.do(req); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/files/missing", nil)
		req.AddCookie(owner)
		if rec := ts.do(req); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("delete then download is not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/files/"+id, nil)
		req.AddCookie(owner)
		if rec := ts.do(req); rec.Code != http.StatusOK {
			t.Fatalf("delete returned %d", rec.Code)
		}
		req = httptest.NewRequest(http.MethodGet, "/files/"+id, nil)
		req.AddCookie(owner)
		if rec := ts.do(req); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", rec.Code)
		}
	})
}

func TestLinkRoutes(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.session(t, "owner@example.com")

	rec := ts.upload(t, owner, "CoverLetter", samplePDF)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload returned %d", rec.Code)
	}
	id := uploadedID(t, rec)

	// The seeded job must belong to the session user, so resolve the user id
	// through the session probe first.
	req := httptest.NewRequest(http.MethodGet, "/users/check", nil)
	req.AddCookie(owner)
	check := ts.do(req)
	var checkBody struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(check.Body.Bytes(), &checkBody); err != nil {
		t.Fatalf("failed to parse check response: %v", err)
	}
	ts.jobs.jobs["job-1"] = &database.Job{ID: "job-1", OwnerID: checkBody.UserID, Title: "Backend Engineer"}

	t.Run("link and duplicate link", func(t *testing.T) {
		if rec := ts.doJSON(http.MethodPut, "/files/link/"+id, `{"jobId":"job-1"}`, owner); rec.Code != http.StatusOK {
			t.Fatalf("link returned %d: %s", rec.Code, rec.Body.String())
		}
		if rec := ts.doJSON(http.MethodPut, "/files/link/"+id, `{"jobId":"job-1"}`, owner); rec.Code != http.StatusBadRequest {
			t.Errorf("duplicate link returned %d", rec.Code)
		}
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		if rec := ts.doJSON(http.MethodPut, "/files/link/"+id, `{"jobId":"job-9"}`, owner); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("missing jobId is a bad request", func(t *testing.T) {
		if rec := ts.doJSON(http.MethodPut, "/files/link/"+id, `{}`, owner); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unlink and absent unlink", func(t *testing.T) {
		if rec := ts.doJSON(http.MethodPut, "/files/unlink/"+id, `{"jobId":"job-1"}`, owner); rec.Code != http.StatusOK {
			t.Fatalf("unlink returned %d", rec.Code)
		}
		if rec := ts.doJSON(http.MethodPut, "/files/unlink/"+id, `{"jobId":"job-1"}`, owner); rec.Code != http.StatusBadRequest {
			t.Errorf("absent unlink returned %d", rec.Code)
		}
	})
}
