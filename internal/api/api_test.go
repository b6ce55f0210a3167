package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/tabula/internal/editor"
	"github.com/starford/tabula/internal/index"
	"github.com/starford/tabula/internal/layout"
	"github.com/starford/tabula/internal/storage"
	"github.com/starford/tabula/internal/testutil"
	"github.com/starford/tabula/internal/vault"
)

type testEnv struct {
	dir    string
	ws     *editor.Store
	router http.Handler
}

// newTestEnv sets up a temp vault, SQLite DB, editor, and router.
// A non-empty authToken enables token mode.
func newTestEnv(t *testing.T, authToken string, files map[string]string) *testEnv {
	t.Helper()
	dir, store := testutil.TestVault(t)
	testutil.WriteNotes(t, dir, files)
	db := testutil.TestDB(t)
	logger := testutil.DiscardLogger()
	if err := index.Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	ws := editor.New(storage.NewContent(store, time.Second), editor.WithLogger(logger))
	svc := vault.NewService(store, db, ws, logger)
	router := NewRouter(ws, svc, authToken != "", authToken, nil)
	return &testEnv{dir: dir, ws: ws, router: router}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
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

func TestOpenNoteAndGetWorkspace(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "# A\nbody", "b.md": "# B"})

	w := e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("open status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[OpenNoteResponse](t, w)
	if resp.Tab.ID != "/a.md" || resp.Tab.Content != "# A\nbody" || resp.Tab.Title != "a.md" {
		t.Errorf("tab = %+v", resp.Tab)
	}

	w = e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "/b.md", Disposition: "split-right"})
	if w.Code != http.StatusOK {
		t.Fatalf("split status = %d, body = %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/workspace", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("workspace status = %d", w.Code)
	}
	snap := decode[WorkspaceResponse](t, w)
	if len(snap.Layout.Panes) != 2 || snap.Layout.Orientation != "horizontal" {
		t.Fatalf("layout = %+v", snap.Layout)
	}
	if snap.Layout.ActivePane != "pane-2" || snap.ActiveTabID != "/b.md" {
		t.Errorf("active pane = %s, active tab = %s", snap.Layout.ActivePane, snap.ActiveTabID)
	}
	if len(snap.Tabs) != 2 {
		t.Errorf("tabs = %d, want 2", len(snap.Tabs))
	}
}

func TestOpenNote_BadRequests(t *testing.T) {
	e := newTestEnv(t, "", nil)

	if w := e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty path = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md", Disposition: "sideways"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad disposition = %d, want 400", w.Code)
	}
}

func TestOpenNote_MissingFileKeepsTab(t *testing.T) {
	e := newTestEnv(t, "", nil)

	w := e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "ghost.md"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("open missing = %d, want 404", w.Code)
	}
	resp := decode[OpenNoteResponse](t, w)
	if resp.Tab.ID != "/ghost.md" {
		t.Errorf("tab = %+v", resp.Tab)
	}
	if resp.Workspace.LastError == "" {
		t.Error("expected last_error in workspace")
	}
	if _, ok := e.ws.Tab("/ghost.md"); !ok {
		t.Error("tab should stay open after a failed read")
	}
}

func TestUpdateAndSaveTab(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"notes/x.md": "old"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "notes/x.md"})

	w := e.do(t, http.MethodPut, "/tabs/notes/x.md", UpdateTabRequest{Content: "new"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	tab := decode[editor.TabView](t, w)
	if !tab.IsDirty || tab.Content != "new" {
		t.Errorf("tab after update = %+v", tab)
	}

	w = e.do(t, http.MethodPost, "/save/notes%2Fx.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	if tab = decode[editor.TabView](t, w); tab.IsDirty {
		t.Error("tab still dirty after save")
	}
	data, err := os.ReadFile(filepath.Join(e.dir, "notes", "x.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("file = %q, want new", data)
	}

	w = e.do(t, http.MethodGet, "/tabs/notes/x.md", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get tab = %d", w.Code)
	}
}

func TestCloseTab(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "a"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})

	w := e.do(t, http.MethodDelete, "/tabs/a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d", w.Code)
	}
	snap := decode[WorkspaceResponse](t, w)
	if len(snap.Tabs) != 0 || len(snap.Layout.Panes) != 1 {
		t.Errorf("workspace after close = %+v", snap)
	}

	if w = e.do(t, http.MethodDelete, "/tabs/a.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("second close = %d, want 404", w.Code)
	}
	if w = e.do(t, http.MethodGet, "/tabs/a.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("get closed tab = %d, want 404", w.Code)
	}
}

func TestActiveTabAndPane(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "a", "b.md": "b"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "b.md", Disposition: "split-down"})

	w := e.do(t, http.MethodPut, "/workspace/active-tab", ActiveTabRequest{TabID: "/a.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("active tab = %d", w.Code)
	}
	if snap := decode[WorkspaceResponse](t, w); snap.Layout.ActivePane != "pane-1" {
		t.Errorf("active pane = %s, want pane-1", snap.Layout.ActivePane)
	}

	if w = e.do(t, http.MethodPut, "/workspace/active-pane", ActivePaneRequest{PaneID: "pane-2"}); w.Code != http.StatusOK {
		t.Errorf("active pane = %d", w.Code)
	}
	if w = e.do(t, http.MethodPut, "/workspace/active-pane", ActivePaneRequest{PaneID: "pane-9"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown pane = %d, want 404", w.Code)
	}
	if w = e.do(t, http.MethodPut, "/workspace/active-tab", ActiveTabRequest{TabID: "/nope.md"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown tab = %d, want 404", w.Code)
	}
}

func TestReorderTabs(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "a", "b.md": "b"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "b.md"})

	w := e.do(t, http.MethodPut, "/workspace/panes/pane-1/order", ReorderRequest{Tabs: []layout.TabID{"/b.md", "/a.md"}})
	if w.Code != http.StatusOK {
		t.Fatalf("reorder = %d, body = %s", w.Code, w.Body.String())
	}
	snap := decode[WorkspaceResponse](t, w)
	if got := snap.Layout.Panes[0].Tabs; len(got) != 2 || got[0] != "/b.md" {
		t.Errorf("tabs = %v", got)
	}

	w = e.do(t, http.MethodPut, "/workspace/panes/pane-1/order", ReorderRequest{Tabs: []layout.TabID{"/a.md"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("partial order = %d, want 400", w.Code)
	}
}

func TestSaveAllAndReset(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "a", "b.md": "b"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "b.md"})
	e.do(t, http.MethodPut, "/tabs/a.md", UpdateTabRequest{Content: "a2"})
	e.do(t, http.MethodPut, "/tabs/b.md", UpdateTabRequest{Content: "b2"})

	if w := e.do(t, http.MethodPost, "/workspace/save-all", nil); w.Code != http.StatusOK {
		t.Fatalf("save all = %d, body = %s", w.Code, w.Body.String())
	}
	for name, want := range map[string]string{"a.md": "a2", "b.md": "b2"} {
		data, _ := os.ReadFile(filepath.Join(e.dir, name))
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}

	w := e.do(t, http.MethodPost, "/workspace/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}
	if snap := decode[WorkspaceResponse](t, w); len(snap.Tabs) != 0 {
		t.Errorf("tabs after reset = %d", len(snap.Tabs))
	}
}

func TestVaultCreateAndGet(t *testing.T) {
	e := newTestEnv(t, "", nil)

	w := e.do(t, http.MethodPost, "/vault/hello", CreateNoteRequest{Content: "# Hello\nWorld"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/vault/hello.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	note := decode[NoteDetail](t, w)
	if note.Path != "/hello.md" || note.Title != "Hello" {
		t.Errorf("note = %+v", note)
	}

	if w = e.do(t, http.MethodPost, "/vault/hello.md", CreateNoteRequest{Content: "again"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
	if w = e.do(t, http.MethodGet, "/vault/nope.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestVaultRenameUpdatesTabs(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "# A"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})

	name := "renamed"
	w := e.do(t, http.MethodPatch, "/vault/a.md", MoveRequest{Name: &name})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[MoveResponse](t, w); got.Path != "/renamed.md" {
		t.Errorf("path = %q", got.Path)
	}
	if _, ok := e.ws.Tab("/renamed.md"); !ok {
		t.Error("tab not renamed")
	}
	if _, ok := e.ws.Tab("/a.md"); ok {
		t.Error("old tab still present")
	}
}

func TestVaultMoveRequiresOneTarget(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "a"})

	if w := e.do(t, http.MethodPatch, "/vault/a.md", MoveRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("no target = %d, want 400", w.Code)
	}
	name, folder := "b", "x"
	if w := e.do(t, http.MethodPatch, "/vault/a.md", MoveRequest{Name: &name, Folder: &folder}); w.Code != http.StatusBadRequest {
		t.Errorf("both targets = %d, want 400", w.Code)
	}
}

func TestVaultDeleteFolderClosesTabs(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"d/a.md": "a", "d/b.md": "b", "keep.md": "k"})
	for _, p := range []string{"d/a.md", "d/b.md", "keep.md"} {
		e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: p})
	}

	if w := e.do(t, http.MethodDelete, "/vault/d", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	tabs := e.ws.Tabs()
	if len(tabs) != 1 || tabs[0].ID != "/keep.md" {
		t.Errorf("tabs = %+v", tabs)
	}
	if w := e.do(t, http.MethodDelete, "/vault/d", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{
		"a.md": "---\ntags: [work]\n---\n# A",
		"b.md": "# B",
	})

	w := e.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if resp := decode[NoteListResponse](t, w); resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}

	w = e.do(t, http.MethodGet, "/notes?tag=work", nil)
	resp := decode[NoteListResponse](t, w)
	if resp.Total != 1 || len(resp.Notes) != 1 || resp.Notes[0].Path != "/a.md" {
		t.Errorf("tag filter = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"found.md": "# Found\nunique searchable content"})

	w := e.do(t, http.MethodGet, "/search?q=searchable", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) == 0 || resp.Results[0].Path != "/found.md" {
		t.Errorf("results = %+v", resp.Results)
	}

	if w = e.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := newTestEnv(t, "secret123", nil)

	req := httptest.NewRequest(http.MethodGet, "/workspace", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := newTestEnv(t, "secret123", nil)

	if w := e.do(t, http.MethodGet, "/workspace", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := newTestEnv(t, "secret123", nil)

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, store := testutil.TestVault(t)
	ws := editor.New(storage.NewContent(store, time.Second))
	svc := vault.NewService(store, testutil.TestDB(t), ws, testutil.DiscardLogger())
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router := NewRouter(ws, svc, true, "tok", sse)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req = httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGet(t *testing.T) {
	e := newTestEnv(t, "secret123", nil)

	if w := e.do(t, http.MethodGet, "/workspace?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/workspace/reset?access_token=secret123", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}

func TestGetTab_ETag(t *testing.T) {
	e := newTestEnv(t, "", map[string]string{"a.md": "alpha"})
	e.do(t, http.MethodPost, "/workspace/open", OpenNoteRequest{Path: "a.md"})

	w := e.do(t, http.MethodGet, "/tabs/a.md", nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("get = %d, etag = %q", w.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/tabs/a.md", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", rec.Code)
	}

	e.do(t, http.MethodPut, "/tabs/a.md", UpdateTabRequest{Content: "beta"})
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("ETag") == etag {
		t.Errorf("after edit = %d, etag %q", rec.Code, rec.Header().Get("ETag"))
	}
}
