// Package server - HTTP-граница блога на gin.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/feed"
	"github.com/ButyrinIA/blog/internal/service"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	maxUploadMemory = 10 << 20
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg      *config.Config
	svc      *service.Service
	store    storage.Storage
	log      logrus.FieldLogger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

func New(cfg *config.Config, svc *service.Service, tokens *auth.Tokens, store storage.Storage, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := gin.New()
	router.MaxMultipartMemory = maxUploadMemory
	router.Use(
		s.requestLogger(),
		gin.CustomRecovery(s.recover),
		cors.Default(),
		auth.Middleware(tokens, store, log),
		s.loaders(),
	)
	s.router = router
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.GET("/", s.index)
	r.GET("/group/:slug/", s.groupPosts)
	r.GET("/profile/:username/", s.profile)
	r.GET("/profile/:username/follow/", s.follow)
	r.GET("/profile/:username/unfollow/", s.unfollow)
	r.GET("/follow/", s.followIndex)

	r.GET("/create/", s.createForm)
	r.POST("/create/", s.create)
	r.GET("/posts/:id/", s.postDetail)
	r.GET("/posts/:id/edit/", s.editForm)
	r.POST("/posts/:id/edit/", s.edit)
	r.POST("/posts/:id/comment/", s.addComment)
	r.GET("/posts/:id/comments/ws", s.commentsWS)

	r.GET("/about/author/", s.static("about/author.html"))
	r.GET("/about/tech/", s.static("about/tech.html"))

	if s.cfg.Media.Backend == "local" && s.cfg.Media.BaseURL != "" {
		r.Static(s.cfg.Media.BaseURL, s.cfg.Media.Root)
	}

	r.NoRoute(func(c *gin.Context) {
		render(c, http.StatusNotFound, "core/404.html", gin.H{"path": c.Request.URL.Path})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("Сервер слушает")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("Остановка сервера")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Set("request_id", reqID)

		c.Next()

		entry := s.log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Запрос завершился ошибкой")
			return
		}
		entry.Info("Запрос обработан")
	}
}

func (s *Server) recover(c *gin.Context, rec any) {
	s.log.WithField("panic", rec).Error("Паника в обработчике")
	render(c, http.StatusInternalServerError, "core/500.html", nil)
	c.Abort()
}

// loaders кладет в контекст запроса свежие пакетные загрузчики.
func (s *Server) loaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := feed.WithLoaders(c.Request.Context(), feed.NewLoaders(s.store))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// render отдает имя шаблона и контекст страницы в JSON.
func render(c *gin.Context, status int, template string, data any) {
	c.JSON(status, gin.H{
		"template": template,
		"context":  data,
	})
}
