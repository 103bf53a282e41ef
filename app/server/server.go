package server

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"legischat/app/api"
	"legischat/app/pipeline"
	"legischat/types"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    64 * 1024 * 1024,
}

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *slog.Logger
}

type Options struct {
	Asker          api.Asker
	Sessions       *pipeline.Registry
	RequestTimeout time.Duration
	DataPath       string
	Corpus         map[string]types.DocType
}

func NewServer(addr string, opts Options) *Server {
	return &Server{
		listenAddr: addr,
		app:        NewApp(opts),
		logger:     slog.Default(),
	}
}

// NewApp registers the routes.
func NewApp(opts Options) *fiber.App {
	var (
		app            = fiber.New(config)
		checkHandler   = api.NewCheckHandler(opts.Sessions)
		requestHandler = api.NewRequestHandler(opts.Asker, opts.Sessions, opts.RequestTimeout)
		fileHandler    = api.NewFileHandler(opts.DataPath, opts.Corpus)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/sessions", requestHandler.HandleCreateSession)
	apiv1.Get("/sessions/:id", requestHandler.HandleGetSession)
	apiv1.Delete("/sessions/:id", requestHandler.HandleDeleteSession)
	apiv1.Post("/request", requestHandler.HandleRequest)
	apiv1.Get("/sources", requestHandler.HandleSources)
	apiv1.Post("/documents/:doc_type", fileHandler.HandleUpload)

	return app
}

func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	if err := s.app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

// RunUntil serves until a signal arrives on stop and then shuts down. If
// serving fails first, the listener error is returned.
func (s *Server) RunUntil(stop <-chan os.Signal) error {
	errch := make(chan error, 1)
	go func() {
		errch <- s.Run()
	}()

	select {
	case err := <-errch:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal, shutting down server", "signal", sig.String())
		return s.Stop()
	}
}

func (s *Server) Stop() error {
	defer s.logger.Info("server stopped")
	return s.app.ShutdownWithTimeout(10 * time.Second)
}
