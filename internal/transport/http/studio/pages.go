package studio

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	httptransport "image-processor-go/internal/transport/http"
	"image-processor-go/internal/platform/errors"
)

type pageData struct {
	Title     string
	Subtitle  string
	Session   SessionView
	ImageURL  string
	Notice    string
	Camera    bool
	Accept    string
	MaxPrompt int
}

// handleIndex renders the page for the caller's current stage.
func (s *Service) handleIndex(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	sess, err := s.sessions.Current(c.Request.Context(), id)
	if err != nil {
		s.logger.ErrorTag("HTTP", "failed to load session: %v", err)
		_ = c.Error(err)
		c.String(statusFor(err), errors.MessageOf(err))
		return
	}
	s.remember(c, id, sess)
	s.render(c, http.StatusOK, sess, "")
}

func (s *Service) handleUpload(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	input, done := s.uploadInput(c)
	defer done()
	sess, err := s.sessions.Acquire(c.Request.Context(), id, input)
	s.finishPage(c, id, sess, err)
}

func (s *Service) handlePrompt(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	sess, err := s.sessions.SetPrompt(c.Request.Context(), id, c.PostForm("prompt"))
	s.finishPage(c, id, sess, err)
}

func (s *Service) handleProcess(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	var prompt *string
	if p, ok := c.GetPostForm("prompt"); ok {
		prompt = &p
	}
	sess, err := s.sessions.Process(c.Request.Context(), id, prompt)
	s.finishPage(c, id, sess, err)
}

func (s *Service) handleStartOver(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	sess, err := s.sessions.StartOver(c.Request.Context(), id)
	s.finishPage(c, id, sess, err)
}

func (s *Service) handleImage(c *gin.Context) {
	img, err := s.sessions.Image(c.Request.Context(), s.identity.SessionID(c.Request))
	if err != nil {
		_ = c.Error(err)
		c.String(statusFor(err), errors.MessageOf(err))
		return
	}
	writeImage(c, img)
}

// uploadInput reads the multipart image field. A missing file yields an
// input without a reader, which the pipeline rejects as an acquisition failure.
// The returned func closes the opened file.
func (s *Service) uploadInput(c *gin.Context) (domainimage.Input, func()) {
	input := domainimage.Input{Source: domainimage.SourceUpload}
	header, err := c.FormFile("image")
	if err != nil {
		s.logger.DebugTag("HTTP", "upload without image field: %v", err)
		return input, func() {}
	}
	file, err := header.Open()
	if err != nil {
		s.logger.WarnTag("HTTP", "failed to open uploaded file: %v", err)
		return input, func() {}
	}
	input.Reader = file
	input.Filename = header.Filename
	return input, func() { _ = file.Close() }
}

// finishPage redirects after a successful action and re-renders the page
// with the failure otherwise.
func (s *Service) finishPage(c *gin.Context, id string, sess session.Session, err error) {
	s.remember(c, id, sess)
	if err == nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	_ = c.Error(err)
	if sess.ID == "" {
		c.String(statusFor(err), errors.MessageOf(err))
		return
	}

	// acquisition and model failures are already recorded on the session
	notice := ""
	if errors.IsKind(err, errors.KindDomain) {
		notice = errors.MessageOf(err)
	}
	s.render(c, statusFor(err), sess, notice)
}

func (s *Service) render(c *gin.Context, status int, sess session.Session, notice string) {
	view := newSessionView(sess, "/image")
	data := pageData{
		Title:     s.config.Web.Title,
		Subtitle:  s.config.Web.Subtitle,
		Session:   view,
		Notice:    notice,
		Camera:    s.config.Camera.Enabled,
		Accept:    s.accept(),
		MaxPrompt: s.maxPrompt(),
	}
	if view.Image != nil {
		data.ImageURL = view.Image.URL
	}
	c.Header("Cache-Control", "no-store")
	c.Render(status, render.HTML{Template: s.page, Name: "page.html", Data: data})
}

// remember issues a cookie for a new session id and slides the cookie of an
// active session once it is half way to expiry.
func (s *Service) remember(c *gin.Context, id string, sess session.Session) {
	if sess.ID == "" {
		return
	}
	if sess.ID == id && !s.identity.NeedsRefresh(c.Request) {
		return
	}
	if err := s.identity.Remember(c.Writer, sess.ID); err != nil {
		s.logger.WarnTag("HTTP", "failed to issue session cookie: %v", err)
	}
}

func writeImage(c *gin.Context, img domainimage.Image) {
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, img.MIMEType(), img.Bytes)
}

// statusFor refines the shared mapping: an unknown session is a 404.
func statusFor(err error) int {
	if stderrors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	return httptransport.StatusFor(err)
}
