package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

// Serves chunks from the local store to other peers. Only local chunks are served; the server never forwards a miss to another peer.
type Server struct {
	store *chunk.Store
	echo  *echo.Echo
	httpd *http.Server

	log *slog.Logger
}

type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func NewServer(st *chunk.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("system", "peer")
	}
	e := echo.New()
	e.HideBanner = true
	s := &Server{
		store: st,
		echo:  e,
		log:   logger,
	}

	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(MetricsMiddleware)
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.HandleHealthCheck)
	e.GET("/chunks/:cid", s.HandleGetChunk)
	e.HEAD("/chunks/:cid", s.HandleHeadChunk)
	return s
}

// The underlying handler, for mounting elsewhere or in tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serves until Shutdown.
func (s *Server) StartWithListener(listen net.Listener) error {
	s.httpd = &http.Server{Handler: s.echo}
	s.log.Info("peer server listening", "addr", listen.Addr())
	if err := s.httpd.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Start(addr string) error {
	li, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.StartWithListener(li)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpd == nil {
		return nil
	}
	return s.httpd.Shutdown(ctx)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal error"
	var httpError *echo.HTTPError
	if errors.As(err, &httpError) {
		code = httpError.Code
		msg = fmt.Sprintf("%s", httpError.Message)
	} else {
		s.log.Warn("peer handler error", "path", c.Path(), "err", err)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, map[string]any{"error": msg}); err != nil {
		s.log.Error("failed to write http error", "err", err)
	}
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{Status: "ok"})
}

func (s *Server) HandleGetChunk(c echo.Context) error {
	data, err := s.localChunk(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	chunksServed.WithLabelValues("ok").Inc()
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
}

func (s *Server) HandleHeadChunk(c echo.Context) error {
	data, err := s.localChunk(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	c.Response().Header().Set(echo.HeaderContentLength, strconv.Itoa(len(data)))
	return c.NoContent(http.StatusOK)
}

func (s *Server) localChunk(c echo.Context) ([]byte, error) {
	id, err := chunk.ParseIdentifier(c.Param("cid"))
	if err != nil || !id.Defined() {
		chunksServed.WithLabelValues("bad_request").Inc()
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid chunk identifier")
	}
	data, err := s.store.Get(c.Request().Context(), id, "")
	if errors.Is(err, chunk.ErrNotFound) {
		chunksServed.WithLabelValues("not_found").Inc()
		return nil, echo.NewHTTPError(http.StatusNotFound, "chunk not found")
	}
	if err != nil {
		chunksServed.WithLabelValues("error").Inc()
		return nil, err
	}
	return data, nil
}
