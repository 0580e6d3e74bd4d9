package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setPathValue attaches a chi URL parameter to the request, mirroring what
// the router does when it matches a pattern such as /trees/{treeID}.
func setPathValue(req *http.Request, name, value string) *http.Request {
	rctx, _ := req.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if rctx == nil {
		rctx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(name, value)
	return req
}
