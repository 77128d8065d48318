package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Port            int  `yaml:"port"`
	EnableCORS      bool `yaml:"enable_cors"`
	RateLimit       int  `yaml:"rate_limit"` // Requests per minute
	MaxUploadSizeMB int  `yaml:"max_upload_size_mb"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		EnableCORS:      true,
		RateLimit:       600,
		MaxUploadSizeMB: 100,
	}
}

// NodeInfo describes the running node
type NodeInfo struct {
	Address string   `json:"address"`
	Name    string   `json:"name"`
	MDU     int      `json:"mdu"`
	PeerID  string   `json:"peer_id,omitempty"`
	Addrs   []string `json:"addrs,omitempty"`
	Peers   int      `json:"peers"`
}

// Server is the HTTP API of the bridge
type Server struct {
	bridge     *Bridge
	info       func() NodeInfo
	router     *gin.Engine
	limiter    *RateLimiter
	port       int
	httpServer *http.Server
}

// NewServer creates the HTTP API; info is queried on every node info request
func NewServer(b *Bridge, config ServerConfig, info func() NodeInfo) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		bridge: b,
		info:   info,
		router: gin.New(),
		port:   config.Port,
	}

	s.setupMiddleware(config)
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(config ServerConfig) {
	if config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}

	if config.RateLimit > 0 {
		s.limiter = NewRateLimiter(config.RateLimit)
		s.router.Use(RateLimitMiddleware(s.limiter))
	}

	s.router.Use(LoggingMiddleware())
	s.router.Use(gin.Recovery())

	s.router.MaxMultipartMemory = int64(config.MaxUploadSizeMB) << 20
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/messages", s.handleSendMessage)
		v1.POST("/commands", s.handleCommand)
		v1.POST("/broadcasts", s.handleBroadcast)
		v1.GET("/broadcasts", s.handleListBroadcasts)
		v1.GET("/events", s.handleEvents)
		v1.GET("/contacts", s.handleContacts)

		chats := v1.Group("/chats")
		{
			chats.POST("", s.handleCreateChat)
			chats.GET("", s.handleListChats)
			chats.GET("/:chatID/messages", s.handleChatMessages)
			chats.POST("/:chatID/read", s.handleMarkRead)
		}

		files := v1.Group("/files")
		{
			files.POST("", s.handleSendFile)
			files.GET("/:fileID", s.handleFileStatus)
			files.GET("/:fileID/content", s.handleFileContent)
		}

		calls := v1.Group("/calls")
		{
			calls.POST("/invoke", s.handleCallInvoke)
			calls.POST("/answer", s.handleCallAnswer)
			calls.POST("/reject", s.handleCallReject)
			calls.POST("/audio", s.handleCallAudio)
		}

		v1.GET("/node/info", s.handleNodeInfo)
	}

	s.router.GET("/health", s.handleHealth)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 HTTP API listening on port %d", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infof("🛑 shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpServer.Shutdown(shutdownCtx)
}
