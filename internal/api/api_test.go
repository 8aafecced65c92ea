package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/sumi/internal/alert"
	"github.com/starford/sumi/internal/service"
	"github.com/starford/sumi/internal/storage"
	"github.com/starford/sumi/internal/store"
	"github.com/starford/sumi/internal/testutil"
)

const storePath = `\vault.sumi`

// testEnv sets up an in-memory store, index, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*storage.Memory, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil, false)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler, verbose bool) (*storage.Memory, http.Handler) {
	t.Helper()
	p := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store.New(p), testutil.TestIndex(t), storePath, service.WithLogger(logger))
	t.Cleanup(svc.Shutdown)
	rep := alert.New(logger, alert.Static(verbose))
	return p, NewRouter(svc, rep, authEnabled, authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, want, w.Body.String())
	}
}

// createStore creates the store and adds folder -> card -> entry.
func createStore(t *testing.T, router http.Handler) (folder, card string) {
	t.Helper()
	mustStatus(t, do(t, router, http.MethodPost, "/store/create", PasswordRequest{Password: testutil.Password}), http.StatusCreated)

	w := do(t, router, http.MethodPost, "/nodes/root/children", AddNodeRequest{Kind: "folder", Label: "banking"})
	mustStatus(t, w, http.StatusCreated)
	folder = decodeBody[NodeResponse](t, w).ID

	w = do(t, router, http.MethodPost, "/nodes/"+folder+"/children", AddNodeRequest{Kind: "card", Label: "checking"})
	mustStatus(t, w, http.StatusCreated)
	card = decodeBody[NodeResponse](t, w).ID

	w = do(t, router, http.MethodPost, "/nodes/"+card+"/children", AddNodeRequest{Kind: "text", Label: "notes", Content: "pin 1234 #money"})
	mustStatus(t, w, http.StatusCreated)
	return folder, card
}

func TestCreateAndBrowse(t *testing.T) {
	_, router := testEnv(t, "")
	folder, card := createStore(t, router)

	w := do(t, router, http.MethodGet, "/store", nil)
	mustStatus(t, w, http.StatusOK)
	st := decodeBody[StatusResponse](t, w)
	if st.State != "unlocked" || !st.Dirty || st.Cards != 1 || st.Name != "vault" {
		t.Errorf("status = %+v", st)
	}

	w = do(t, router, http.MethodGet, "/tree", nil)
	mustStatus(t, w, http.StatusOK)
	root := decodeBody[NodeResponse](t, w)
	if root.Kind != "cabinet" || len(root.Children) != 1 || root.Children[0].ID != folder {
		t.Errorf("tree = %+v", root)
	}

	w = do(t, router, http.MethodGet, "/nodes/"+card, nil)
	mustStatus(t, w, http.StatusOK)
	n := decodeBody[NodeResponse](t, w)
	if len(n.Children) != 1 || n.Children[0].Content != "pin 1234 #money" {
		t.Errorf("card = %+v", n)
	}
	if len(n.Tags) != 1 || n.Tags[0] != "money" {
		t.Errorf("tags = %v", n.Tags)
	}

	w = do(t, router, http.MethodGet, "/tags", nil)
	mustStatus(t, w, http.StatusOK)
	if tags := decodeBody[TagsResponse](t, w).Tags; len(tags) != 1 || tags[0].Count != 1 {
		t.Errorf("tags = %+v", tags)
	}
}

func TestCreateTwiceConflicts(t *testing.T) {
	_, router := testEnv(t, "")
	createStore(t, router)
	w := do(t, router, http.MethodPost, "/store/create", PasswordRequest{Password: testutil.Password})
	if w.Code != http.StatusConflict {
		t.Errorf("second create = %d, want 409", w.Code)
	}
}

func TestCreateRejectsShortPassword(t *testing.T) {
	p, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/store/create", PasswordRequest{Password: "abc"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("short password = %d, want 401", w.Code)
	}
	if ok, _ := p.Exists(context.Background(), storePath); ok {
		t.Error("nothing should be written")
	}
}

func TestLockAndUnlock(t *testing.T) {
	_, router := testEnv(t, "")
	_, card := createStore(t, router)
	mustStatus(t, do(t, router, http.MethodPost, "/store/save", nil), http.StatusOK)

	mustStatus(t, do(t, router, http.MethodPost, "/store/lock", nil), http.StatusOK)

	w := do(t, router, http.MethodGet, "/tree", nil)
	mustStatus(t, w, http.StatusOK)
	if v := decodeBody[NodeResponse](t, w); v.Kind != "folder" || v.Label != "vault" || len(v.Children) != 0 {
		t.Errorf("locked tree = %+v", v)
	}
	if w := do(t, router, http.MethodGet, "/nodes/"+card, nil); w.Code != http.StatusLocked {
		t.Errorf("node while locked = %d, want 423", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/search?q=pin", nil); w.Code != http.StatusLocked {
		t.Errorf("search while locked = %d, want 423", w.Code)
	}

	w = do(t, router, http.MethodPost, "/store/unlock", PasswordRequest{Password: "wrongpw1"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d, want 401", w.Code)
	}
	if msg := decodeBody[errResponse](t, w).Error; msg != "incorrect password" {
		t.Errorf("message = %q", msg)
	}
	mustStatus(t, do(t, router, http.MethodPost, "/store/unlock", PasswordRequest{Password: testutil.Password}), http.StatusOK)

	w = do(t, router, http.MethodGet, "/search?q=pin", nil)
	mustStatus(t, w, http.StatusOK)
	if res := decodeBody[SearchResponse](t, w).Results; len(res) != 1 || res[0].ID != card {
		t.Errorf("search = %+v", res)
	}
}

func TestUpdateAndDeleteNode(t *testing.T) {
	_, router := testEnv(t, "")
	folder, card := createStore(t, router)

	label := "savings"
	w := do(t, router, http.MethodPatch, "/nodes/"+card, UpdateNodeRequest{Label: &label})
	mustStatus(t, w, http.StatusOK)
	if v := decodeBody[NodeResponse](t, w); v.Label != "savings" {
		t.Errorf("label = %q", v.Label)
	}
	if w := do(t, router, http.MethodPatch, "/nodes/"+card, UpdateNodeRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", w.Code)
	}
	content := "x"
	if w := do(t, router, http.MethodPatch, "/nodes/"+folder, UpdateNodeRequest{Content: &content}); w.Code != http.StatusBadRequest {
		t.Errorf("content on folder = %d, want 400", w.Code)
	}

	mustStatus(t, do(t, router, http.MethodDelete, "/nodes/"+folder, nil), http.StatusNoContent)
	if w := do(t, router, http.MethodGet, "/nodes/"+card, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/nodes/root", nil); w.Code != http.StatusBadRequest {
		t.Errorf("delete cabinet = %d, want 400", w.Code)
	}
}

func TestAddNodeValidation(t *testing.T) {
	_, router := testEnv(t, "")
	_, card := createStore(t, router)

	if w := do(t, router, http.MethodPost, "/nodes/root/children", AddNodeRequest{Kind: "bogus", Label: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/nodes/root/children", AddNodeRequest{Kind: "card", Label: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("card under cabinet = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/nodes/"+card+"/children", AddNodeRequest{Kind: "line", Label: "pw", Content: "a\nb"}); w.Code != http.StatusBadRequest {
		t.Errorf("multi-line single-line entry = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/nodes/missing/children", AddNodeRequest{Kind: "card", Label: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("missing parent = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/nodes/root/children", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestMoveNode(t *testing.T) {
	_, router := testEnv(t, "")
	folder, card := createStore(t, router)

	w := do(t, router, http.MethodPost, "/nodes/root/children", AddNodeRequest{Kind: "folder", Label: "archive"})
	mustStatus(t, w, http.StatusCreated)
	archive := decodeBody[NodeResponse](t, w).ID

	mustStatus(t, do(t, router, http.MethodPost, "/nodes/"+card+"/move", MoveNodeRequest{Parent: archive}), http.StatusOK)
	w = do(t, router, http.MethodGet, "/nodes/"+archive, nil)
	if v := decodeBody[NodeResponse](t, w); len(v.Children) != 1 || v.Children[0].ID != card {
		t.Errorf("archive = %+v", v)
	}

	if w := do(t, router, http.MethodPost, "/nodes/"+card+"/move", MoveNodeRequest{Parent: RootID}); w.Code != http.StatusBadRequest {
		t.Errorf("card to cabinet = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/nodes/"+folder+"/move", MoveNodeRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing parent = %d, want 400", w.Code)
	}
}

func TestSaveOutOfSync(t *testing.T) {
	p, router := testEnv(t, "")
	_, card := createStore(t, router)
	mustStatus(t, do(t, router, http.MethodPost, "/store/save", nil), http.StatusOK)

	data, _ := p.Get(storePath)
	_ = p.Put(storePath, data)

	label := "changed"
	mustStatus(t, do(t, router, http.MethodPatch, "/nodes/"+card, UpdateNodeRequest{Label: &label}), http.StatusOK)
	w := do(t, router, http.MethodPost, "/store/save", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("stale save = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, "/store/sync", nil)
	mustStatus(t, w, http.StatusOK)
	if decodeBody[SyncResponse](t, w).OK {
		t.Error("dirty stale store should not sync")
	}
}

func TestCloseAndChangePassword(t *testing.T) {
	_, router := testEnv(t, "")
	createStore(t, router)

	w := do(t, router, http.MethodPost, "/store/password", ChangePasswordRequest{Current: testutil.Password, Password: "newpass1"})
	mustStatus(t, w, http.StatusOK)

	w = do(t, router, http.MethodPost, "/store/close", nil)
	mustStatus(t, w, http.StatusOK)
	if st := decodeBody[StatusResponse](t, w); st.State != "uninitialized" {
		t.Errorf("state after close = %s", st.State)
	}
	if w := do(t, router, http.MethodGet, "/tree", nil); w.Code != http.StatusConflict {
		t.Errorf("tree after close = %d, want 409", w.Code)
	}

	if w := do(t, router, http.MethodPost, "/store/unlock", PasswordRequest{Password: testutil.Password}); w.Code != http.StatusUnauthorized {
		t.Errorf("old password = %d, want 401", w.Code)
	}
	mustStatus(t, do(t, router, http.MethodPost, "/store/unlock", PasswordRequest{Password: "newpass1"}), http.StatusOK)
}

func TestVerboseErrors(t *testing.T) {
	_, router := testEnvFull(t, false, "", nil, true)
	w := do(t, router, http.MethodGet, "/nodes/missing", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if msg := decodeBody[errResponse](t, w).Error; msg == "no store is open" || !strings.Contains(msg, "not initialized") {
		t.Errorf("verbose message = %q", msg)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no query = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/backlinks", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no target = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/store", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/store", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/store", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnvFull(t, false, "", nil, false)
	if w := do(t, router, http.MethodGet, "/store", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// stubSSE writes headers and blocks until the request context ends.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvFull(t, true, "secret", stubSSE, false)
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvFull(t, true, "tok", stubSSE, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}

func TestAuthMiddleware_ChallengeAndQueryToken(t *testing.T) {
	_, router := testEnvFull(t, true, "tok", stubSSE, false)

	w := do(t, router, http.MethodGet, "/store", nil)
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="sumi"` {
		t.Errorf("challenge = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("query token on GET = %d, want 200", w.Code)
	}

	if w := do(t, router, http.MethodPost, "/store/lock?access_token=tok", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("query token on POST = %d, want 401", w.Code)
	}
}

func TestControlCharactersRejectedAndStoreStaysSavable(t *testing.T) {
	_, router := testEnv(t, "")
	_, card := createStore(t, router)

	w := do(t, router, http.MethodPost, "/nodes/"+card+"/children", AddNodeRequest{Kind: "text", Label: "bad", Content: "a\u0001b"})
	mustStatus(t, w, http.StatusBadRequest)

	label := "bell\u0007"
	w = do(t, router, http.MethodPatch, "/nodes/"+card, UpdateNodeRequest{Label: &label})
	mustStatus(t, w, http.StatusBadRequest)

	mustStatus(t, do(t, router, http.MethodPost, "/store/save", nil), http.StatusOK)
	if st := decodeBody[StatusResponse](t, do(t, router, http.MethodGet, "/store", nil)); st.Dirty {
		t.Error("store should be clean after save")
	}
}
