package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"roadside/internal/shared/logger"
)

// Server — HTTP сервер сервиса
type Server struct {
	addr   string
	server *http.Server
	log    *logger.Logger
}

func NewServer(port int, handler http.Handler, log *logger.Logger) *Server {
	addr := ":" + strconv.Itoa(port)
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Serve блокируется до Shutdown; штатная остановка не ошибка
func (s *Server) Serve() error {
	s.log.Info(logger.Entry{
		Action:     "http_server_starting",
		Message:    "listening on " + s.addr,
		Additional: map[string]any{"addr": s.addr},
	})
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error(logger.Entry{
			Action:  "http_server_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error(logger.Entry{
			Action:  "http_server_shutdown_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return err
	}
	s.log.Info(logger.Entry{Action: "http_server_stopped", Message: "HTTP server stopped"})
	return nil
}
