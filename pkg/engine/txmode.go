package engine

import (
	"net/http"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// transactionOptions selects the transaction mode for a request before any
// statement runs. Reads and schema inspection run read-only; GET and HEAD
// invocations are read-only whatever the function declares, POST invocations
// follow its volatility; every mutation runs read-write. Authenticated
// callers use unprepared statements so pooled connections carry no
// prepared-statement state across roles.
func transactionOptions(snap *schema.Snapshot, req *api.Request, anonymous bool) db.TxOptions {
	opts := db.TxOptions{NoPrepare: !anonymous}

	switch req.Action {
	case api.ActionRead, api.ActionInspect:
		opts.ReadOnly = true

	case api.ActionInvoke:
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			opts.ReadOnly = true
			break
		}
		if proc, ok := snap.Procedure(req.Target.Schema, req.Target.Name); ok {
			opts.ReadOnly = proc.Volatility.ReadOnly()
		}
	}
	return opts
}
