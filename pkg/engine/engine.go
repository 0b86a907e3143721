// Package engine dispatches structured requests against the database: it
// selects the transaction mode, runs the action handler, enforces response
// integrity, and assembles the final HTTP response including any overrides
// the database asserted.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/request"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// Executor runs compiled statements on a request transaction.
type Executor interface {
	SetLocalGUCs(ctx context.Context, tx *db.Tx, role string, claims []byte, method, path string) error
	Execute(ctx context.Context, tx *db.Tx, q compiler.Query) (*api.StandardResult, error)
	ExactCount(ctx context.Context, tx *db.Tx, q compiler.Query) (int64, error)
	PlannedCount(ctx context.Context, tx *db.Tx, q compiler.Query) (int64, error)
	ExplainPlan(ctx context.Context, tx *db.Tx, q compiler.Query) ([]byte, error)
}

// TxRunner opens request transactions. *db.Pool is the production
// implementation.
type TxRunner interface {
	WithTransaction(ctx context.Context, opts db.TxOptions, fn func(tx *db.Tx) error) error
}

// Authenticator resolves the caller's database identity.
type Authenticator interface {
	Resolve(r *http.Request) (api.AuthResult, error)
	Anonymous(res api.AuthResult) bool
}

// DocGenerator renders the schema document for root inspection. visible,
// when non-nil, restricts the document to the named relations.
type DocGenerator interface {
	Generate(snap *schema.Snapshot, schemaName string, visible []string) ([]byte, error)
}

// Engine is the request dispatcher. It implements http.Handler; transport
// concerns (routing, middleware, shutdown) live outside.
type Engine struct {
	cfg    *config.Config
	cache  *schema.Cache
	runner TxRunner
	exec   Executor
	auth   Authenticator
	parser *request.Parser
	docs   DocGenerator
	retry  *db.RetryState

	// wakeReconnect asks the connection supervisor to probe the database;
	// wakeReload asks the schema reloader for a fresh snapshot. Both must be
	// non-blocking.
	wakeReconnect func()
	wakeReload    func()

	log *slog.Logger
}

// Options bundles the engine's collaborators.
type Options struct {
	Config        *config.Config
	Cache         *schema.Cache
	Runner        TxRunner
	Executor      Executor
	Auth          Authenticator
	Docs          DocGenerator
	Retry         *db.RetryState
	WakeReconnect func()
	WakeReload    func()
	Logger        *slog.Logger
}

func New(opts Options) *Engine {
	e := &Engine{
		cfg:           opts.Config,
		cache:         opts.Cache,
		runner:        opts.Runner,
		exec:          opts.Executor,
		auth:          opts.Auth,
		parser:        request.NewParser(opts.Config.Database),
		docs:          opts.Docs,
		retry:         opts.Retry,
		wakeReconnect: opts.WakeReconnect,
		wakeReload:    opts.WakeReload,
		log:           opts.Logger,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.retry == nil {
		e.retry = &db.RetryState{}
	}
	if e.wakeReconnect == nil {
		e.wakeReconnect = func() {}
	}
	if e.wakeReload == nil {
		e.wakeReload = func() {}
	}
	return e
}

var _ http.Handler = (*Engine)(nil)

func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, authRes := e.handle(r)
	e.write(w, r, resp, authRes)
}

// handle runs the full pipeline and never panics across the boundary; every
// failure becomes a response.
func (e *Engine) handle(r *http.Request) (*response, api.AuthResult) {
	authRes := api.AuthResult{Role: e.cfg.Database.AnonymousRole}

	snap := e.cache.Current()
	if snap == nil {
		e.wakeReload()
		return e.failure(api.NewSchemaCacheMissing(), authRes), authRes
	}

	resolved, err := e.auth.Resolve(r)
	if err != nil {
		return e.failure(err, authRes), authRes
	}
	authRes = resolved

	body, err := readBody(r, e.cfg.Server.MaxBodySize)
	if err != nil {
		return e.failure(err, authRes), authRes
	}

	req, err := e.parser.Parse(r, body)
	if err != nil {
		return e.failure(err, authRes), authRes
	}

	// Info never touches the database: capabilities come from the snapshot.
	if req.Action == api.ActionInfo {
		resp, err := e.handleInfo(snap, req)
		if err != nil {
			return e.failure(err, authRes), authRes
		}
		return resp, authRes
	}

	resp, err := e.dispatch(r.Context(), snap, req, authRes)
	if err != nil {
		return e.failure(err, authRes), authRes
	}
	return resp, authRes
}

// dispatch opens the transaction and runs the action handler inside it.
func (e *Engine) dispatch(ctx context.Context, snap *schema.Snapshot, req *api.Request, authRes api.AuthResult) (*response, error) {
	anonymous := e.auth.Anonymous(authRes)
	opts := transactionOptions(snap, req, anonymous)

	var resp *response
	err := e.runner.WithTransaction(ctx, opts, func(tx *db.Tx) error {
		if err := e.exec.SetLocalGUCs(ctx, tx, authRes.Role, authRes.Claims, req.Method, req.Path); err != nil {
			return err
		}

		var err error
		resp, err = e.runAction(ctx, tx, snap, req)
		if err != nil {
			return err
		}

		// tx=rollback annuls an otherwise successful transaction. The
		// rollback-all deployment mode does the same for authenticated
		// callers unless the client explicitly asked to commit.
		if req.Prefer.Tx == api.TxRollback {
			tx.DoNotCommit()
		}
		if e.cfg.Database.TxRollbackAll && !anonymous && req.Prefer.Tx != api.TxCommit {
			tx.DoNotCommit()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) runAction(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	switch req.Action {
	case api.ActionRead:
		return e.handleRead(ctx, tx, snap, req)
	case api.ActionCreate:
		return e.handleCreate(ctx, tx, snap, req)
	case api.ActionUpdate:
		return e.handleUpdate(ctx, tx, snap, req)
	case api.ActionUpsert:
		return e.handleUpsert(ctx, tx, snap, req)
	case api.ActionDelete:
		return e.handleDelete(ctx, tx, snap, req)
	case api.ActionInvoke:
		return e.handleInvoke(ctx, tx, snap, req)
	case api.ActionInspect:
		return e.handleInspect(ctx, tx, snap, req)
	}
	return nil, api.NewNotFound("no handler for %s", req.Action)
}

// failure turns an error into a response. Systemic unavailability gets
// Retry-After and wakes the connection supervisor exactly once per request.
func (e *Engine) failure(err error, authRes api.AuthResult) *response {
	apiErr := asAPIError(err)

	resp := &response{
		status:  apiErr.HTTPStatus(),
		headers: http.Header{},
		err:     apiErr,
	}
	if apiErr.Unavailable() {
		resp.headers.Set("Retry-After", fmt.Sprintf("%d", e.retry.RetryAfterSeconds()))
		e.wakeReconnect()
	}
	if apiErr.Kind == api.KindJWT {
		resp.headers.Set("WWW-Authenticate", "Bearer")
	}

	e.log.Warn("request failed",
		"status", resp.status,
		"error", apiErr.Message,
	)
	return resp
}

// asAPIError normalizes any pipeline error. Lost connections are detected
// here so handlers do not have to classify transport failures themselves.
func asAPIError(err error) *api.Error {
	if db.IsUnavailable(err) {
		return api.NewConnectionLost(err)
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewDatabaseError(err.Error(), "", "", err)
}

// write renders the response. Error responses carry a JSON body built from
// the caller-safe view of the failure.
func (e *Engine) write(w http.ResponseWriter, r *http.Request, resp *response, authRes api.AuthResult) {
	for name, values := range resp.headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	if resp.err != nil {
		body, _ := json.Marshal(resp.err.Body(!e.auth.Anonymous(authRes)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if r.Method != http.MethodHead {
			w.Write(body)
		}
		return
	}

	if resp.contentType != "" {
		w.Header().Set("Content-Type", resp.contentType)
	}
	w.WriteHeader(resp.status)
	if r.Method != http.MethodHead && len(resp.body) > 0 {
		w.Write(resp.body)
	}
}

func readBody(r *http.Request, maxSize int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	reader := io.Reader(r.Body)
	if maxSize > 0 {
		reader = io.LimitReader(r.Body, maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, api.NewInvalidRequest("cannot read request body: %v", err)
	}
	if maxSize > 0 && int64(len(body)) > maxSize {
		return nil, api.NewInvalidRequest("request body exceeds %d bytes", maxSize)
	}
	return body, nil
}
