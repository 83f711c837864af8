package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

const adminEmail = "admin@example.com"

// fakeSink records clipboard writes.
type fakeSink struct{ text string }

func (f *fakeSink) WriteAll(text string) error {
	f.text = text
	return nil
}

// fakeProvider accepts any code except "bad" and returns a fixed profile.
type fakeProvider struct {
	email string

	mu      sync.Mutex
	revoked int
}

func (f *fakeProvider) AuthCodeURL(state, redirectURL string) string {
	return "https://accounts.test/auth?" + url.Values{
		"state":        {state},
		"redirect_uri": {redirectURL},
	}.Encode()
}

func (f *fakeProvider) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
	}
	return &oauth2.Token{AccessToken: "tok-" + code}, nil
}

func (f *fakeProvider) UserInfo(context.Context, *oauth2.Token) (catalog.Principal, error) {
	return catalog.Principal{ID: "g-" + f.email, DisplayName: "Operador", Email: f.email}, nil
}

func (f *fakeProvider) Revoke(context.Context, *oauth2.Token) error {
	f.mu.Lock()
	f.revoked++
	f.mu.Unlock()
	return nil
}

// setupTest creates a command environment over temporary stores.
func setupTest(t *testing.T) *env {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	scratch, err := session.OpenScratch(tmpDir)
	if err != nil {
		t.Fatalf("failed to open scratch: %v", err)
	}
	t.Cleanup(func() { scratch.Close() })

	cfg := config.DefaultConfig()
	cfg.AdminEmails = []string{adminEmail}
	cfg.AllowedPaths = []string{tmpDir}

	return &env{
		db:       database,
		cfg:      cfg,
		scratch:  scratch,
		baseDir:  tmpDir,
		workDir:  tmpDir,
		sink:     &fakeSink{},
		provider: &fakeProvider{email: adminEmail},
	}
}

// signIn stores a principal in the CLI session.
func signIn(t *testing.T, e *env, email string) {
	t.Helper()
	sid, err := e.scratch.CurrentSession()
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	p := catalog.Principal{ID: "u-" + email, DisplayName: email, Email: email}
	if err := e.scratch.SavePrincipal(sid, p); err != nil {
		t.Fatalf("save principal: %v", err)
	}
}

// runCLI runs the app with stdin piped from input and returns captured stdout.
func runCLI(t *testing.T, e *env, input string, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(e)

	// Capture stdout
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Create a pipe for stdin
	oldStdin := os.Stdin
	stdinR, stdinW, _ := os.Pipe()
	os.Stdin = stdinR
	go func() {
		_, _ = stdinW.WriteString(input)
		stdinW.Close()
	}()

	err := app.Run(append([]string{"ccpro"}, args...))

	// Restore stdin
	os.Stdin = oldStdin
	stdinR.Close()

	// Read stdout
	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

// mustRun runs a command that must succeed and decodes its JSON output into v.
func mustRun(t *testing.T, e *env, v any, args ...string) {
	t.Helper()
	out, err := runCLI(t, e, "", args...)
	if err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output of %v: %v\nOutput: %s", args, err, out)
	}
}

// expectCode runs a command that must fail with the given error code.
func expectCode(t *testing.T, e *env, code errors.ErrorCode, args ...string) {
	t.Helper()
	_, err := runCLI(t, e, "", args...)
	if err == nil {
		t.Fatalf("%v: expected [%s] error, got success", args, code)
	}
	if !strings.Contains(err.Error(), "["+string(code)+"]") {
		t.Fatalf("%v: expected [%s] error, got %v", args, code, err)
	}
}

// addPromotion creates a plan promotion through the CLI and returns its id.
func addPromotion(t *testing.T, e *env, title, description string, plans ...string) string {
	t.Helper()
	args := []string{"promo", "add", "--title=" + title, "--description=" + description}
	for _, p := range plans {
		args = append(args, "--plan="+p)
	}
	var out ops.StorePromotionOutput
	mustRun(t, e, &out, args...)
	if out.ID == "" {
		t.Fatal("expected non-empty promotion ID")
	}
	return out.ID
}

func TestOutputError(t *testing.T) {
	err := outputError(errors.NewNotFound(catalog.CollectionNotes, "n1"))
	if !strings.HasPrefix(err.Error(), "[NOT_FOUND] ") {
		t.Errorf("expected [NOT_FOUND] prefix, got %q", err.Error())
	}

	err = outputError(stderrors.New("boom"))
	if err.Error() != "[INTERNAL] boom" {
		t.Errorf("expected unknown errors as internal, got %q", err.Error())
	}
}

func TestCLIWhoami(t *testing.T) {
	e := setupTest(t)

	expectCode(t, e, errors.ErrUnauthorized, "whoami")

	signIn(t, e, adminEmail)
	var out struct {
		Email string `json:"email"`
		Admin bool   `json:"admin"`
	}
	mustRun(t, e, &out, "whoami")
	if out.Email != adminEmail || !out.Admin {
		t.Errorf("expected admin %s, got %+v", adminEmail, out)
	}
}

func TestCLILogin(t *testing.T) {
	e := setupTest(t)

	// The browser follows the consent page straight back to the loopback callback.
	browse := func(code string) func(string) error {
		return func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			cb := q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {q.Get("state")}}.Encode()
			go func() {
				resp, err := http.Get(cb)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}
	}

	t.Run("signs in", func(t *testing.T) {
		e.openBrowser = browse("good")
		var p catalog.Principal
		mustRun(t, e, &p, "login", "--port=0", "--timeout=10s")
		if p.Email != adminEmail {
			t.Fatalf("expected %s, got %+v", adminEmail, p)
		}

		sid, _ := e.scratch.CurrentSession()
		stored, err := e.scratch.LoadPrincipal(sid)
		if err != nil || stored == nil || stored.Email != adminEmail {
			t.Fatalf("expected stored principal, got %+v (%v)", stored, err)
		}
	})

	t.Run("code rejected", func(t *testing.T) {
		e.openBrowser = browse("bad")
		expectCode(t, e, errors.ErrUnauthorized, "login", "--port=0", "--timeout=10s")
	})

	t.Run("not on allow-list", func(t *testing.T) {
		fp := &fakeProvider{email: "intruso@example.com"}
		e.provider = fp
		e.openBrowser = browse("good")
		expectCode(t, e, errors.ErrUnauthorized, "login", "--port=0", "--timeout=10s")
		if fp.revoked != 1 {
			t.Errorf("expected token revoked once, got %d", fp.revoked)
		}
	})
}

func TestCLILogout_KeepsBudget(t *testing.T) {
	e := setupTest(t)
	signIn(t, e, adminEmail)
	mustRun(t, e, nil, "budget", "add", "--name=Instalación", "--price=1500")

	mustRun(t, e, nil, "logout")
	expectCode(t, e, errors.ErrUnauthorized, "whoami")

	var b ops.BudgetOutput
	mustRun(t, e, &b, "budget", "show")
	if b.Count != 1 {
		t.Errorf("expected budget to survive logout, got %d items", b.Count)
	}
}

func TestCLIPromotions(t *testing.T) {
	e := setupTest(t)

	expectCode(t, e, errors.ErrUnauthorized, "promo", "add", "--title=X", "--description=Y", "--plan=Mensual | 10")

	signIn(t, e, adminEmail)
	id := addPromotion(t, e, "Plan Premium", "Internet fibra 300MB", "Mensual | 5000 | 6000 | 1000", "Anual | 54000")
	addPromotion(t, e, "Plan Básico", "Internet cobre", "Mensual | 2500")

	t.Run("show", func(t *testing.T) {
		var p catalog.Promotion
		mustRun(t, e, &p, "promo", "show", id)
		if p.Title != "Plan Premium" || len(p.Plans) != 2 {
			t.Fatalf("unexpected promotion: %+v", p)
		}
		if p.Plans[0].ListPrice.String() != "6000" {
			t.Errorf("expected list price 6000, got %s", p.Plans[0].ListPrice)
		}
	})

	t.Run("list", func(t *testing.T) {
		var out ops.ListPromotionsOutput
		mustRun(t, e, &out, "promo", "list", "--limit=1")
		if len(out.Items) != 1 || !out.Pagination.HasMore {
			t.Errorf("expected one item and more pages, got %d items has_more=%v", len(out.Items), out.Pagination.HasMore)
		}
	})

	t.Run("search", func(t *testing.T) {
		var out ops.SearchPromotionsOutput
		mustRun(t, e, &out, "search", "fibra")
		if out.Total != 1 {
			t.Fatalf("expected 1 match, got %d", out.Total)
		}
		if out.Groups[0].Items[0].ID != id {
			t.Errorf("expected %s, got %s", id, out.Groups[0].Items[0].ID)
		}

		mustRun(t, e, &out, "search")
		if out.Total != 2 {
			t.Errorf("expected blank query to list 2, got %d", out.Total)
		}
	})

	t.Run("invalid plan", func(t *testing.T) {
		expectCode(t, e, errors.ErrInvalidRequest, "promo", "add", "--title=Z", "--description=z", "--plan=Mensual | caro")
	})

	t.Run("update", func(t *testing.T) {
		var p catalog.Promotion
		mustRun(t, e, &p, "promo", "update", "--title=Plan Premium Plus", id)
		if p.Title != "Plan Premium Plus" || len(p.Plans) != 2 {
			t.Errorf("expected only the title to change, got %+v", p)
		}
	})

	t.Run("copy", func(t *testing.T) {
		var out ops.CopyOutput
		mustRun(t, e, &out, "promo", "copy", id)
		if !out.Copied {
			t.Error("expected copied=true")
		}
		if got := e.sink.(*fakeSink).text; !strings.Contains(got, "Mensual") {
			t.Errorf("expected clipboard to hold the plans, got %q", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		expectCode(t, e, errors.ErrInvalidRequest, "promo", "delete", id)

		var out ops.DeleteOutput
		mustRun(t, e, &out, "promo", "delete", "--yes", id)
		if !out.Deleted {
			t.Error("expected deleted=true")
		}
		expectCode(t, e, errors.ErrNotFound, "promo", "show", id)
	})
}

func TestCLINotes(t *testing.T) {
	e := setupTest(t)
	expectCode(t, e, errors.ErrUnauthorized, "note", "list")
	signIn(t, e, "operador@example.com")

	out, err := runCLI(t, e, "Cliente **Gómez** pide fibra", "note", "add", "--title=Llamada Gómez")
	if err != nil {
		t.Fatalf("note add failed: %v", err)
	}
	var stored ops.StoreNoteOutput
	if err := json.Unmarshal([]byte(out), &stored); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}

	var note catalog.Note
	mustRun(t, e, &note, "note", "show", stored.ID)
	if note.Content != "Cliente **Gómez** pide fibra" {
		t.Errorf("expected content from stdin, got %q", note.Content)
	}

	mustRun(t, e, &note, "note", "update", "--title=Llamada resuelta", stored.ID)
	if note.Title != "Llamada resuelta" || note.Content == "" {
		t.Errorf("expected title change only, got %+v", note)
	}

	var list ops.ListNotesOutput
	mustRun(t, e, &list, "note", "list", "--sort=title")
	if len(list.Items) != 1 || list.Sort != "title" {
		t.Errorf("expected 1 note sorted by title, got %d (%s)", len(list.Items), list.Sort)
	}

	var copied ops.CopyOutput
	mustRun(t, e, &copied, "note", "copy", stored.ID)
	if !copied.Copied {
		t.Error("expected copied=true")
	}

	expectCode(t, e, errors.ErrInvalidRequest, "note", "delete", stored.ID)
	mustRun(t, e, nil, "note", "delete", "-y", stored.ID)
	expectCode(t, e, errors.ErrNotFound, "note", "show", stored.ID)
}

func TestCLIBudget(t *testing.T) {
	e := setupTest(t)
	signIn(t, e, adminEmail)
	promo := addPromotion(t, e, "Plan Premium", "Internet fibra", "Mensual | 5000", "Anual | 54000")

	var b ops.BudgetOutput
	mustRun(t, e, &b, "budget", "add-plan", "--plan=Anual", promo)
	mustRun(t, e, &b, "budget", "add", "--name=Router", "--price=2000", "--quantity=2")
	if b.Count != 2 || b.Total.String() != "58000" {
		t.Fatalf("expected 2 items totalling 58000, got %d / %s", b.Count, b.Total)
	}
	if !strings.Contains(b.Text, "TOTAL") {
		t.Errorf("expected rendered quote, got %q", b.Text)
	}

	mustRun(t, e, &b, "budget", "update", "--price=150,50", "1")
	if b.Total.String() != "54301" {
		t.Errorf("expected 54301 after decimal-comma price, got %s", b.Total)
	}

	expectCode(t, e, errors.ErrInvalidRequest, "budget", "remove", "7")
	expectCode(t, e, errors.ErrInvalidRequest, "budget", "remove", "uno")

	var saved ops.SaveBudgetOutput
	mustRun(t, e, &saved, "budget", "save", "--name=Cliente Pérez")
	if saved.ID == "" || saved.Count != 2 {
		t.Fatalf("unexpected save output: %+v", saved)
	}

	var copied ops.CopyOutput
	mustRun(t, e, &copied, "budget", "copy")
	if !copied.Copied || copied.Text != b.Text {
		t.Errorf("expected the quote on the clipboard, got %+v", copied)
	}

	mustRun(t, e, &b, "budget", "remove", "0")
	mustRun(t, e, &b, "budget", "clear")
	if b.Count != 0 {
		t.Fatalf("expected empty budget, got %d", b.Count)
	}

	var list ops.ListSavedBudgetsOutput
	mustRun(t, e, &list, "budget", "saved")
	if len(list.Items) != 1 || list.Items[0].Name != "Cliente Pérez" {
		t.Fatalf("unexpected saved budgets: %+v", list.Items)
	}

	mustRun(t, e, &b, "budget", "load", saved.ID)
	if b.Count != 2 {
		t.Errorf("expected loaded budget with 2 items, got %d", b.Count)
	}

	mustRun(t, e, nil, "budget", "delete-saved", "--yes", saved.ID)
	mustRun(t, e, &list, "budget", "saved")
	if len(list.Items) != 0 {
		t.Errorf("expected no saved budgets, got %d", len(list.Items))
	}
}

func TestCLIUsers(t *testing.T) {
	e := setupTest(t)
	signIn(t, e, adminEmail)

	var allowed ops.AllowUserOutput
	mustRun(t, e, &allowed, "user", "allow", "--name=Operador", "Operador@Example.com")
	if allowed.Email != "operador@example.com" || allowed.Role != catalog.RoleUser {
		t.Errorf("unexpected allow output: %+v", allowed)
	}

	var list ops.ListUsersOutput
	mustRun(t, e, &list, "user", "list")
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 user, got %d", len(list.Items))
	}

	var revoked ops.RevokeUserOutput
	mustRun(t, e, &revoked, "user", "revoke", "operador@example.com")
	if !revoked.Revoked {
		t.Error("expected revoked=true")
	}

	signIn(t, e, "operador@example.com")
	expectCode(t, e, errors.ErrUnauthorized, "user", "list")
}

func TestCLICatalogExportImport(t *testing.T) {
	e := setupTest(t)
	signIn(t, e, adminEmail)
	addPromotion(t, e, "Plan Premium", "Internet fibra", "Mensual | 5000")

	path := filepath.Join(e.baseDir, "catalog.toml")

	var exported ops.ExportCatalogOutput
	mustRun(t, e, &exported, "catalog", "export", "--path="+path)
	if exported.Count != 1 {
		t.Fatalf("expected 1 exported promotion, got %d", exported.Count)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected export file: %v", err)
	}

	var imported ops.ImportCatalogOutput
	mustRun(t, e, &imported, "catalog", "import", "--path="+path)
	if imported.Imported != 0 || len(imported.Errors) != 1 || imported.Errors[0].Code != string(errors.ErrNameAlreadyExists) {
		t.Fatalf("expected the collision reported and nothing imported, got %+v", imported)
	}

	mustRun(t, e, &imported, "catalog", "import", "--path="+path, "--mode=skip")
	if imported.Imported != 0 || imported.Skipped != 1 {
		t.Errorf("expected 0 imported / 1 skipped, got %+v", imported)
	}

	expectCode(t, e, errors.ErrInvalidRequest, "catalog", "import", "--path="+filepath.Join(e.baseDir, "catalog.json"))
}
