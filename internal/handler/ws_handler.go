package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/luxfi/geth/common"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/response"
	ws "github.com/learnframe/learnframe-backend/internal/websocket"
)

const outboundBuffer = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs one quiz controller per WebSocket connection.
type WSHandler struct {
	ledger   QuizLedger
	cfg      quiz.Config
	clock    *clock.Clock
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(ledger QuizLedger, cfg quiz.Config, clk *clock.Clock, m *metrics.Metrics, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		ledger:   ledger,
		cfg:      cfg,
		clock:    clk,
		metrics:  m,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// emitter turns controller snapshots into outbound events. The controller
// may notify from its timer goroutine and the read loop at the same time.
type emitter struct {
	mu         sync.Mutex
	out        chan interface{}
	resultSent bool
	log        zerolog.Logger
}

func (e *emitter) observe(snap quiz.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.send(ws.StateResponse{Event: ws.EventState, Data: snap})

	if snap.State != quiz.StateDone {
		e.resultSent = false
		return
	}
	if !e.resultSent && snap.Result != nil {
		e.resultSent = true
		e.send(ws.ResultResponse{Event: ws.EventResult, Result: *snap.Result})
	}
	e.send(ws.RedirectResponse{Event: ws.EventRedirect, Remaining: snap.RedirectRemaining})
}

// send never blocks; a client that stops reading loses intermediate frames
// and catches up on the next snapshot.
func (e *emitter) send(v interface{}) {
	select {
	case e.out <- v:
	default:
		e.log.Warn().Msg("Outbound buffer full, dropping event")
	}
}

// QuizStream godoc
// WS /ws/v1/quiz/stream
// Upgrades to WebSocket and drives a timed quiz attempt for the wallet.
func (h *WSHandler) QuizStream(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	wsConn := ws.NewConn(conn)
	defer wsConn.Close()

	wsLog := h.log.With().Str("wallet", wallet.Hex()).Logger()

	em := &emitter{out: make(chan interface{}, outboundBuffer), log: wsLog}
	ctrl := quiz.NewController(wallet, h.ledger, h.cfg,
		quiz.WithClock(h.clock),
		quiz.WithLogger(h.log),
		quiz.WithObserver(em.observe),
	)

	h.metrics.LiveControllers.Inc()
	defer h.metrics.LiveControllers.Dec()

	done := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for {
			select {
			case <-done:
				return
			case v := <-em.out:
				if err := wsConn.WriteTyped(v); err != nil {
					wsLog.Debug().Err(err).Msg("Write failed")
					return
				}
			}
		}
	}()

	// The upgraded request's context ends with the handler, not the socket.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		ctrl.Close()
		close(done)
		writer.Wait()
	}()

	wsLog.Info().Msg("Wallet connected")
	if err := ctrl.Refresh(ctx); err != nil {
		h.writeQuizError(wsConn, err)
	}

	for {
		var msg ws.Request
		if err := wsConn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.dispatch(ctx, ctrl, wallet, &msg, wsConn); err != nil {
			h.writeQuizError(wsConn, err)
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, ctrl *quiz.Controller, wallet common.Address, msg *ws.Request, conn *ws.Conn) error {
	switch msg.Action {
	case ws.ActionRefresh:
		return ctrl.Refresh(ctx)
	case ws.ActionStart:
		return ctrl.Start(ctx)
	case ws.ActionSelect:
		if msg.Index == nil {
			return quiz.ErrInvalidAnswers
		}
		if err := ctrl.Select(*msg.Index, msg.Answer); err != nil {
			return err
		}
		if err := h.ledger.SaveDraft(ctx, wallet, *msg.Index, msg.Answer); err != nil {
			// The controller holds the selection; the draft only matters on reconnect.
			h.log.Warn().Err(err).Str("wallet", wallet.Hex()).Int("index", *msg.Index).Msg("Draft save failed")
		}
		return nil
	case ws.ActionSubmit:
		return ctrl.Submit(ctx)
	case ws.ActionPing:
		return conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
	default:
		return conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), "")
	}
}

func (h *WSHandler) writeQuizError(conn *ws.Conn, err error) {
	_, code := quizErrorCode(err)
	errMsg, message := err.Error(), quiz.StatusText(err)
	if code == response.ErrInternal {
		errMsg = "internal error"
		message = response.GetMessage(code)
	}
	if werr := conn.WriteError(string(code), errMsg, message); werr != nil {
		h.log.Debug().Err(werr).Msg("Error frame write failed")
	}
}
