package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/sumi/internal/testutil"
	"github.com/starford/sumi/internal/tree"
)

func memoryConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Store.Provider = ProviderMemory
	cfg.Store.Root = ""
	cfg.Store.Watch = false
	return cfg
}

func openApp(t *testing.T, cfg *Config, opts ...Option) *App {
	t.Helper()
	var logs bytes.Buffer
	opts = append([]Option{WithConfig(cfg), WithLogOutput(&logs)}, opts...)
	app, err := Open(context.Background(), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { app.Close(context.Background()) })
	return app
}

func TestOpen_RequiresConfig(t *testing.T) {
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("Open without config should fail")
	}
}

func TestOpen_MissingStoreIsNotAnError(t *testing.T) {
	app := openApp(t, memoryConfig())
	if st := app.Service.Status(context.Background()); st.State != "uninitialized" {
		t.Errorf("state = %s", st.State)
	}
	if _, ok := app.StoreFile(); ok {
		t.Error("memory provider has no local file")
	}
}

func TestOpen_WithPasswordUnlocks(t *testing.T) {
	root := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Store.Root = root
	cfg.Store.Watch = false

	first := openApp(t, cfg)
	if err := first.Service.Create(context.Background(), testutil.Password); err != nil {
		t.Fatal(err)
	}
	first.Close(context.Background())

	if _, err := os.Stat(filepath.Join(root, "cabinet.sumi")); err != nil {
		t.Fatalf("store file missing: %v", err)
	}

	app := openApp(t, cfg, WithPassword(testutil.Password))
	if st := app.Service.Status(context.Background()); st.State != "unlocked" {
		t.Errorf("state = %s", st.State)
	}
	if p, ok := app.StoreFile(); !ok || filepath.Base(p) != "cabinet.sumi" {
		t.Errorf("StoreFile = %q, %v", p, ok)
	}

	var logs bytes.Buffer
	_, err := Open(context.Background(), WithConfig(cfg), WithLogOutput(&logs), WithPassword("wrongpw1"))
	if err == nil || !strings.Contains(err.Error(), "incorrect password") {
		t.Errorf("wrong password err = %v", err)
	}
}

func TestAutosave_PlainStoreOnDisk(t *testing.T) {
	root := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Store.Root = root
	cfg.Store.Watch = false
	cfg.Store.Autosave = true

	app := openApp(t, cfg)
	ctx := context.Background()
	if err := app.Service.Create(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Service.AddNode(ctx, "", tree.KindFolder, "inbox", "", -1); err != nil {
		t.Fatal(err)
	}
	app.Close(ctx)

	data, err := os.ReadFile(filepath.Join(root, "cabinet.sumi"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("<Folder")) || !bytes.Contains(data, []byte("inbox")) {
		t.Errorf("plain store should hold readable markup: %q", data)
	}
}

func TestHandler_HealthAndAPI(t *testing.T) {
	app := openApp(t, memoryConfig())
	h := NewHandler(app)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("live = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready without store = %d, want 503", w.Code)
	}

	body := strings.NewReader(`{"password":"` + testutil.Password + `"}`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/store/create", body))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var st struct {
		State string `json:"state"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.State != "unlocked" {
		t.Errorf("state = %q", st.State)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ready = %d", w.Code)
	}
}

func TestHandler_AuthFromConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth = AuthConfig{Mode: AuthModeToken, Token: "s3cret"}
	h := NewHandler(openApp(t, cfg))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/store", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/store", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health should skip auth: %d", w.Code)
	}
}
