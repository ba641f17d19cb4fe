// Package studio serves the image processor's page and JSON API on top of
// the session service.
package studio

import (
	"context"
	"embed"
	"html/template"
	"strings"

	"github.com/gin-contrib/static"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	"image-processor-go/internal/domain/vision"
	httptransport "image-processor-go/internal/transport/http"
	"image-processor-go/internal/platform/config"
	"image-processor-go/internal/platform/errors"
	"image-processor-go/internal/utils"
)

//go:embed templates assets
var content embed.FS

// Assets serves the embedded stylesheet and scripts.
func Assets() static.ServeFileSystem {
	return static.EmbedFolder(content, "assets")
}

// PipelineStats exposes image pipeline counters.
type PipelineStats interface {
	Metrics() domainimage.Metrics
}

// StoreStats exposes session store statistics.
type StoreStats interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// Options wires the studio handlers.
type Options struct {
	Config   *config.Config
	Logger   *utils.Logger
	Sessions *session.Service
	Identity *httptransport.Identity
	Vision   vision.Client
	Pipeline PipelineStats
	Store    StoreStats
}

// Service studio页面与API的HTTP传输层实现
type Service struct {
	config   *config.Config
	logger   *utils.Logger
	sessions *session.Service
	identity *httptransport.Identity
	vision   vision.Client
	pipeline PipelineStats
	store    StoreStats
	page     *template.Template
}

// NewService 创建新的studio服务实例
func NewService(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.KindConfig, "studio.new", "config is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New(errors.KindConfig, "studio.new", "session service is required")
	}
	if opts.Identity == nil {
		return nil, errors.New(errors.KindConfig, "studio.new", "identity is required")
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}

	page, err := template.ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "studio.new", "failed to parse page templates", err)
	}

	return &Service{
		config:   opts.Config,
		logger:   opts.Logger,
		sessions: opts.Sessions,
		identity: opts.Identity,
		vision:   opts.Vision,
		pipeline: opts.Pipeline,
		store:    opts.Store,
		page:     page,
	}, nil
}

// Register 注册页面与API路由
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	engine := router.Engine
	engine.GET("/", s.handleIndex)
	engine.POST("/upload", s.handleUpload)
	engine.POST("/prompt", s.handlePrompt)
	engine.POST("/process", s.handleProcess)
	engine.POST("/start-over", s.handleStartOver)
	engine.GET("/image", s.handleImage)

	api := router.API.Group("/session")
	api.GET("", s.apiCurrent)
	api.POST("/image", s.apiAcquire)
	api.PUT("/prompt", s.apiPrompt)
	api.POST("/process", s.apiProcess)
	api.POST("/reset", s.apiReset)
	api.GET("/image", s.apiImage)

	router.API.GET("/health", s.handleHealth)

	s.logger.InfoTag("HTTP", "studio routes registered")
	return nil
}

func (s *Service) maxPrompt() int {
	return s.config.Web.MaxPromptRunes
}

func (s *Service) security() config.SecurityConfig {
	if _, provider, ok := s.config.SelectedVLLLM(); ok {
		return provider.Security
	}
	return config.DefaultSecurity()
}

// accept renders the file input's accept attribute from the allowed formats.
func (s *Service) accept() string {
	formats := s.security().AllowedFormats
	exts := make([]string, 0, len(formats))
	for _, f := range formats {
		exts = append(exts, "."+strings.ToLower(f))
	}
	return strings.Join(exts, ",")
}
