// Package webhook is the HTTP ingress for WhatsApp Cloud API webhooks.
// It verifies the subscription handshake, parses notification payloads,
// drops redelivered messages, and hands each message to the engine.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hisabi-bot/hisabi/internal/metrics"
	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/dedup"
)

// Handler processes a single inbound message.
type Handler interface {
	HandleMessage(ctx context.Context, msg api.InboundMessage) error
}

// MediaDownloader fetches attachment bytes by media ID.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, mediaID string) (*api.MediaPayload, error)
}

type Config struct {
	Addr        string
	VerifyToken string
	// HandleTimeout bounds processing of one message. Defaults to 60s.
	HandleTimeout time.Duration
}

type Server struct {
	cfg     Config
	echo    *echo.Echo
	handler Handler
	media   MediaDownloader
	seen    *dedup.Window
	logger  *slog.Logger
}

func New(cfg Config, handler Handler, media MediaDownloader, logger *slog.Logger) *Server {
	if cfg.HandleTimeout == 0 {
		cfg.HandleTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		cfg:     cfg,
		echo:    e,
		handler: handler,
		media:   media,
		seen:    dedup.New(0),
		logger:  logger,
	}

	e.GET("/webhook", s.verify)
	e.POST("/webhook", s.receive)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("webhook server listening", "addr", s.cfg.Addr)
	err := s.echo.Start(s.cfg.Addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// verify answers the Cloud API subscription handshake.
func (s *Server) verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token == s.cfg.VerifyToken {
		return c.String(http.StatusOK, challenge)
	}
	s.logger.Warn("webhook verification rejected", "mode", mode)
	return c.NoContent(http.StatusForbidden)
}

// Notification payload shapes, trimmed to the fields the bot reads.

type notification struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
}

// receive acknowledges immediately and processes messages inline. The
// Cloud API redelivers on non-200, so failures are logged and counted
// rather than surfaced as status codes.
func (s *Server) receive(c echo.Context) error {
	var payload notification
	if err := c.Bind(&payload); err != nil {
		s.logger.Warn("discarding unparseable webhook payload", "error", err)
		return c.NoContent(http.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, raw := range change.Value.Messages {
				s.dispatch(c.Request().Context(), raw)
			}
		}
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) dispatch(ctx context.Context, raw inboundMessage) {
	if raw.ID == "" || raw.From == "" {
		return
	}
	if s.seen.Seen(raw.ID) {
		metrics.MessagesDeduplicated.Inc()
		s.logger.Debug("dropping duplicate delivery", "message_id", raw.ID)
		return
	}

	msg := api.InboundMessage{ID: raw.ID, From: raw.From}
	kind := "text"
	switch raw.Type {
	case "text":
		if raw.Text != nil {
			msg.Body = raw.Text.Body
		}
	case "image":
		kind = "image"
		if raw.Image != nil {
			msg.Body = raw.Image.Caption
			msg.HasMedia = true
			mediaID := raw.Image.ID
			msg.DownloadMedia = func(ctx context.Context) (*api.MediaPayload, error) {
				return s.media.DownloadMedia(ctx, mediaID)
			}
		}
	default:
		s.logger.Debug("ignoring unsupported message type", "type", raw.Type, "message_id", raw.ID)
		return
	}
	metrics.MessagesReceived.WithLabelValues(kind).Inc()

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandleTimeout)
	defer cancel()

	start := time.Now()
	err := s.handler.HandleMessage(hctx, msg)
	metrics.HandleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HandleErrors.Inc()
		s.logger.Error("handling message failed", "message_id", raw.ID, "error", err)
	}
}
