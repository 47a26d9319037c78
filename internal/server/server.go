package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ppiankov/sourcecheck/internal/messaging"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxMessageBytes bounds a request envelope
const maxMessageBytes = 1 << 20

// Requester sends a message to the coordinator and waits for the reply
type Requester interface {
	Request(ctx context.Context, msg messaging.Message) (messaging.Message, error)
}

// Runner verifies the current selection
type Runner interface {
	VerifySelection(ctx context.Context) (*model.RunReport, error)
}

// Subscriber streams session states
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan model.SessionState, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP display surface over the coordinator
type Server struct {
	echo         *echo.Echo
	bus          Requester
	runner       Runner
	states       Subscriber
	logger       *zap.Logger
	pingInterval time.Duration
}

// verifyResponse is the body of POST /v1/verify
type verifyResponse struct {
	Report *model.RunReport      `json:"report,omitempty"`
	Error  *messaging.ErrorReply `json:"error,omitempty"`
}

// New creates a server and registers its routes
func New(bus Requester, runner Runner, states Subscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:         e,
		bus:          bus,
		runner:       runner,
		states:       states,
		logger:       logger,
		pingInterval: 20 * time.Second,
	}

	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/messages", s.handleMessage)
	v1.GET("/state", s.handleState)
	v1.GET("/state/ws", s.handleStateWS)
	v1.POST("/verify", s.handleVerify)

	return s
}

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for open requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Debug("request failed",
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Error(err),
	)
	if !c.Response().Committed {
		_ = c.JSON(code, messaging.ErrorReply{Message: msg, Code: "http_" + fmt.Sprint(code)})
	}
}

// handleMessage relays one envelope to the coordinator and writes the reply
// envelope. Failures are written as error envelopes.
func (s *Server) handleMessage(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMessageBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}

	msg, err := messaging.Decode(body)
	if err != nil {
		return s.writeEnvelope(c, http.StatusBadRequest, messaging.ErrorReply{Message: err.Error(), Code: "bad_request"})
	}

	reply, err := s.bus.Request(c.Request().Context(), msg)
	if err != nil {
		errReply := messaging.ErrorFor(err)
		return s.writeEnvelope(c, statusFor(errReply.Code), errReply)
	}
	return s.writeEnvelope(c, http.StatusOK, reply)
}

func (s *Server) writeEnvelope(c echo.Context, status int, msg messaging.Message) error {
	data, err := messaging.Encode(msg)
	if err != nil {
		return err
	}
	return c.JSONBlob(status, data)
}

func (s *Server) handleState(c echo.Context) error {
	reply, err := s.bus.Request(c.Request().Context(), messaging.GetState{})
	if err != nil {
		errReply := messaging.ErrorFor(err)
		return c.JSON(statusFor(errReply.Code), errReply)
	}
	state, ok := reply.(messaging.State)
	if !ok {
		return fmt.Errorf("unexpected reply %s", reply.Kind())
	}
	return c.JSON(http.StatusOK, state.State)
}

// handleVerify runs the pipeline for the current selection. A report is returned
// whenever the run started, also on failure.
func (s *Server) handleVerify(c echo.Context) error {
	if s.runner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "verification disabled")
	}

	report, err := s.runner.VerifySelection(c.Request().Context())
	if err == nil {
		return c.JSON(http.StatusOK, verifyResponse{Report: report})
	}

	errReply := runError(err)
	return c.JSON(statusFor(errReply.Code), verifyResponse{Report: report, Error: &errReply})
}

// handleStateWS streams every session state to a websocket client
func (s *Server) handleStateWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied
		return nil
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	states, err := s.states.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteJSON(messaging.ErrorFor(err))
		return nil
	}

	// Heartbeat ping
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(3 * s.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(3 * s.pingInterval))
	})

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	// Reader pump (discard client messages)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer pump
	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-states:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(time.Second))
				return nil
			}
			if err := conn.WriteJSON(state); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return nil
			}
		}
	}
}

// runError maps pipeline failures to their wire form
func runError(err error) messaging.ErrorReply {
	var cfgErr *pipeline.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return messaging.ErrorReply{Message: err.Error(), Code: "config"}
	case errors.Is(err, pipeline.ErrSuperseded):
		return messaging.ErrorReply{Message: err.Error(), Code: "superseded"}
	case errors.Is(err, pipeline.ErrEmptyClaim):
		return messaging.ErrorReply{Message: err.Error(), Code: "empty_claim"}
	}
	return messaging.ErrorFor(err)
}

// statusFor maps an error code to an HTTP status
func statusFor(code string) int {
	switch {
	case code == "bad_request", code == "empty_claim":
		return http.StatusBadRequest
	case code == "config":
		return http.StatusPreconditionFailed
	case code == "superseded":
		return http.StatusConflict
	case code == "timeout":
		return http.StatusGatewayTimeout
	case code == "unavailable":
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "fetch_"), strings.HasPrefix(code, "verify_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
