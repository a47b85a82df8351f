// Package gateway serves a simulation over HTTP with a small devnet-style
// JSON API. Felts are hex strings in responses and hex or decimal strings
// in requests.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/config"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/repository"
	"github.com/govm-net/starksim/starknet"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/vm"
)

const (
	ContentType     = "Content-Type"
	ApplicationJSON = "application/json; charset=utf-8"

	// MaxRequestSize bounds request bodies.
	MaxRequestSize = 1 << 20
	// RequestTimeout bounds the handling of one request.
	RequestTimeout = 30 * time.Second
)

var errBadRequest = errors.New("bad request")

// Server is the HTTP front of one simulation
type Server struct {
	sim     *starknet.Starknet
	logger  *zap.Logger
	handler http.Handler
}

// New builds the routes for sim.
func New(sim *starknet.Starknet, cfg config.GatewayConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{sim: sim, logger: logger}

	router := httprouter.New()
	for _, r := range s.routes() {
		router.Handle(r.method, r.path, logHandler{path: r.path, h: r.handler, logger: logger}.Handle)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cor := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	})
	s.handler = cor.Handler(http.TimeoutHandler(router, RequestTimeout, `{"error": "request timed out"}`))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("gateway listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	return g.Wait()
}

// logHandler logs each request at debug level.
type logHandler struct {
	path   string
	h      httprouter.Handle
	logger *zap.Logger
}

func (h logHandler) Handle(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	start := time.Now()
	h.h(w, r, p)
	h.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("route", h.path),
		zap.Duration("took", time.Since(start)),
	)
}

// unmarshal reads the request body into ptr. Numbers keep their precision.
func unmarshal(w http.ResponseWriter, r *http.Request, ptr any) bool {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestSize))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr); err != nil {
		writeError(w, errors.Join(errBadRequest, err))
		return false
	}
	return true
}

// write marshals payload to w
func write(w http.ResponseWriter, payload any, code int) {
	w.Header().Set(ContentType, ApplicationJSON)
	w.WriteHeader(code)
	bz, _ := json.MarshalIndent(payload, "", "  ")
	_, _ = w.Write(bz)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	write(w, errorResponse{Error: err.Error()}, statusOf(err))
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, starknet.ErrTransactionRejected), errors.Is(err, core.ErrReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, state.ErrContractNotFound),
		errors.Is(err, state.ErrClassNotFound),
		errors.Is(err, state.ErrReceiptNotFound),
		errors.Is(err, vm.ErrEntryPointNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, starknet.ErrDeploy),
		errors.Is(err, repository.ErrInvalidArtifact),
		errors.Is(err, repository.ErrUnsupportedArtifact),
		errors.Is(err, core.ErrInvalidArgument),
		errors.Is(err, core.ErrValueOutOfRange),
		errors.Is(err, abi.ErrMissingArgument),
		errors.Is(err, abi.ErrUnknownArgument),
		errors.Is(err, abi.ErrArgumentRange),
		errors.Is(err, abi.ErrCalldataLength):
		return http.StatusBadRequest
	case errors.Is(err, starknet.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
