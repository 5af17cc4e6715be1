package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/dpup/prefab/logging"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/export"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/edit"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/services"
)

// errorBody is the JSON error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks request decoding failures
var errBadRequest = errors.New("bad request")

// toStatus classifies err with the gRPC code a gRPC surface would return
func toStatus(err error) *status.Status {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st
	}

	code := codes.Internal
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, edit.ErrUnknownJunction):
		code = codes.NotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, routing.ErrInvalidInput),
		errors.Is(err, viewport.ErrInvalidView),
		errors.Is(err, export.ErrInvalidScenario),
		errors.Is(err, edit.ErrEmptyRoute):
		code = codes.InvalidArgument
	case errors.Is(err, services.ErrNoRoutes),
		errors.Is(err, services.ErrEditActive),
		errors.Is(err, edit.ErrNotActive):
		code = codes.FailedPrecondition
	case errors.Is(err, services.ErrTooManySessions):
		code = codes.ResourceExhausted
	case errors.Is(err, services.ErrSuperseded):
		code = codes.Aborted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.New(code, err.Error())
}

// writeError writes err as a JSON error body with the HTTP status mapped from
// its gRPC code
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := toStatus(err)
	httpStatus := runtime.HTTPStatusFromCode(st.Code())
	if httpStatus >= http.StatusInternalServerError {
		logging.Errorw(r.Context(), "Request failed", "path", r.URL.Path, "code", st.Code().String(), "error", err)
	}
	writeJSON(w, r, httpStatus, errorBody{Code: st.Code().String(), Message: st.Message()})
}
