package engine

import (
	"net/http"
	"strings"
	"testing"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
)

func TestCreateMinimal(t *testing.T) {
	env := newTestEnv(nil)
	env.exec.results = []*api.StandardResult{{RowCount: 1}}

	w := env.do("POST", "/films", `{"title":"Jaws"}`, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if w.Body.Len() != 0 {
		t.Errorf("minimal create returned a body: %s", w.Body.String())
	}
	if env.runner.lastOpts.ReadOnly {
		t.Error("create must run read-write")
	}
}

func TestCreateRepresentationWithLocation(t *testing.T) {
	env := newTestEnv(nil)
	env.exec.results = []*api.StandardResult{{
		Body:     []byte(`[{"id":7,"title":"Jaws"}]`),
		RowCount: 1,
		Location: []api.GucHeader{{Name: "id", Value: "7"}},
	}}

	w := env.do("POST", "/films?select=id,title", `{"title":"Jaws"}`, map[string]string{
		"Prefer": "return=representation",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/films?id=eq.7" {
		t.Errorf("location: got %q", got)
	}
	if got := w.Body.String(); got != `[{"id":7,"title":"Jaws"}]` {
		t.Errorf("body: got %s", got)
	}
	if got := w.Header().Get("Preference-Applied"); !strings.Contains(got, "return=representation") {
		t.Errorf("preference applied: got %q", got)
	}
	if w.Header().Get("Content-Location") == "" {
		t.Error("representation response must carry Content-Location")
	}
}

func TestCreateNotInsertable(t *testing.T) {
	env := newTestEnv(nil)
	w := env.do("POST", "/films_view", `{"title":"x"}`, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d, want 405", w.Code)
	}
}

func TestUpdateNoOpSkipsDatabase(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do("PATCH", "/films?id=eq.7", `{}`, nil)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", w.Code)
	}
	if len(env.exec.executed) != 0 {
		t.Error("empty update must not execute any statement")
	}
}

func TestUpdateRepresentation(t *testing.T) {
	env := newTestEnv(nil)
	env.exec.results = []*api.StandardResult{{Body: []byte(`[{"id":7,"title":"Jaws 2"}]`), RowCount: 1}}

	w := env.do("PATCH", "/films?id=eq.7", `{"title":"Jaws 2"}`, map[string]string{
		"Prefer": "return=representation",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != `[{"id":7,"title":"Jaws 2"}]` {
		t.Errorf("body: got %s", got)
	}
}

func TestUpdateMatchingNothing(t *testing.T) {
	// With columns changed, zero affected rows is a miss; only the empty
	// no-op body succeeds without matching anything.
	env := newTestEnv(nil)
	env.exec.results = []*api.StandardResult{{RowCount: 0}}

	w := env.do("PATCH", "/films?id=eq.999", `{"title":"x"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	if env.runner.annulled {
		t.Error("a missed update must not annul the transaction")
	}
}

func TestChangeLimitAnnuls(t *testing.T) {
	env := newTestEnv(func(cfg *config.Config) { cfg.Database.MaxChanges = 2 })
	env.exec.results = []*api.StandardResult{{RowCount: 3}}

	w := env.do("DELETE", "/films?year=lt.1950", "", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400 (body %s)", w.Code, w.Body.String())
	}
	if !env.runner.annulled {
		t.Error("exceeding the change limit must annul the transaction")
	}
}

func TestUpsert(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(nil)
		env.exec.results = []*api.StandardResult{{RowCount: 1}}

		w := env.do("PUT", "/films?id=eq.7", `{"id":7,"title":"Jaws"}`, nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("status: got %d, want 204 (body %s)", w.Code, w.Body.String())
		}
		if env.runner.annulled {
			t.Error("successful upsert must commit")
		}
	})

	t.Run("missing pk filter", func(t *testing.T) {
		env := newTestEnv(nil)
		w := env.do("PUT", "/films", `{"id":7,"title":"Jaws"}`, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d, want 400", w.Code)
		}
		if len(env.exec.executed) != 0 {
			t.Error("bad addressing must be rejected before execution")
		}
	})

	t.Run("payload key disagrees with filter", func(t *testing.T) {
		env := newTestEnv(nil)
		w := env.do("PUT", "/films?id=eq.7", `{"id":8,"title":"Jaws"}`, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d, want 400", w.Code)
		}
	})

	t.Run("wrong row count annuls", func(t *testing.T) {
		env := newTestEnv(nil)
		env.exec.results = []*api.StandardResult{{RowCount: 0}}

		w := env.do("PUT", "/films?id=eq.7", `{"id":7,"title":"Jaws"}`, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d, want 400", w.Code)
		}
		if !env.runner.annulled {
			t.Error("a non-single upsert outcome must annul the transaction")
		}
	})
}

func TestDelete(t *testing.T) {
	env := newTestEnv(nil)
	env.exec.results = []*api.StandardResult{{RowCount: 2}}

	w := env.do("DELETE", "/films?year=lt.1950", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", w.Code)
	}
}
