package studio

import (
	"bytes"
	"encoding/base64"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	httptransport "image-processor-go/internal/transport/http"
	"image-processor-go/internal/platform/errors"
)

const apiImagePath = "/api/session/image"

// apiCurrent 获取当前会话
// @Summary Current session
// @Tags Session
// @Produce json
// @Success 200 {object} SessionView
// @Router /session [get]
func (s *Service) apiCurrent(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	sess, err := s.sessions.Current(c.Request.Context(), id)
	s.respond(c, id, sess, err, "")
}

// apiAcquire 上传图片（multipart 或 base64 JSON）
// @Summary Upload image
// @Tags Session
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param image formData file false "jpg, jpeg or png image"
// @Success 200 {object} SessionView
// @Failure 409 {object} httptransport.APIResponse
// @Failure 422 {object} httptransport.APIResponse
// @Router /session/image [post]
func (s *Service) apiAcquire(c *gin.Context) {
	id := s.identity.SessionID(c.Request)

	var input domainimage.Input
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var done func()
		input, done = s.uploadInput(c)
		defer done()
	} else {
		var req ImageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httptransport.RespondErr(c, errors.Wrap(errors.KindTransport, "studio.acquire", "expected multipart field image or JSON body with image", err), nil)
			return
		}
		data, err := decodeImagePayload(req.Image)
		if err != nil {
			httptransport.RespondErr(c, errors.Wrap(errors.KindTransport, "studio.acquire", "image must be base64 encoded", err), nil)
			return
		}
		input = domainimage.Input{
			Reader:   bytes.NewReader(data),
			Filename: req.Filename,
			Source:   domainimage.SourceUpload,
		}
	}

	sess, err := s.sessions.Acquire(c.Request.Context(), id, input)
	s.respond(c, id, sess, err, "image acquired")
}

// apiPrompt 设置提示词
// @Summary Set prompt
// @Tags Session
// @Accept json
// @Produce json
// @Param body body PromptRequest true "prompt"
// @Success 200 {object} SessionView
// @Failure 409 {object} httptransport.APIResponse
// @Router /session/prompt [put]
func (s *Service) apiPrompt(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	req, ok := s.bindPrompt(c)
	if !ok {
		return
	}
	prompt := ""
	if req.Prompt != nil {
		prompt = *req.Prompt
	}
	sess, err := s.sessions.SetPrompt(c.Request.Context(), id, prompt)
	s.respond(c, id, sess, err, "prompt updated")
}

// apiProcess 调用视觉模型
// @Summary Process image
// @Tags Session
// @Accept json
// @Produce json
// @Param body body PromptRequest false "optional prompt override"
// @Success 200 {object} SessionView
// @Failure 409 {object} httptransport.APIResponse
// @Failure 502 {object} httptransport.APIResponse
// @Router /session/process [post]
func (s *Service) apiProcess(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	req, ok := s.bindPrompt(c)
	if !ok {
		return
	}
	sess, err := s.sessions.Process(c.Request.Context(), id, req.Prompt)
	s.respond(c, id, sess, err, "response generated")
}

// apiReset 重新开始
// @Summary Start over
// @Tags Session
// @Produce json
// @Success 200 {object} SessionView
// @Router /session/reset [post]
func (s *Service) apiReset(c *gin.Context) {
	id := s.identity.SessionID(c.Request)
	sess, err := s.sessions.StartOver(c.Request.Context(), id)
	s.respond(c, id, sess, err, "session reset")
}

// apiImage 获取已采集的图片
// @Summary Captured image
// @Tags Session
// @Produce image/jpeg
// @Produce image/png
// @Router /session/image [get]
func (s *Service) apiImage(c *gin.Context) {
	img, err := s.sessions.Image(c.Request.Context(), s.identity.SessionID(c.Request))
	if err != nil {
		_ = c.Error(err)
		httptransport.RespondError(c, statusFor(err), errors.MessageOf(err), nil)
		return
	}
	writeImage(c, img)
}

// bindPrompt accepts an empty body as "no prompt".
func (s *Service) bindPrompt(c *gin.Context) (PromptRequest, bool) {
	var req PromptRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		httptransport.RespondErr(c, errors.Wrap(errors.KindTransport, "studio.prompt", "invalid JSON body", err), nil)
		return req, false
	}
	return req, true
}

// respond writes the session envelope. On failure the session left behind
// is attached so clients can render the recorded error.
func (s *Service) respond(c *gin.Context, id string, sess session.Session, err error, message string) {
	s.remember(c, id, sess)

	var data interface{}
	if sess.ID != "" {
		data = newSessionView(sess, apiImagePath)
	}
	if err != nil {
		_ = c.Error(err)
		httptransport.RespondError(c, statusFor(err), errors.MessageOf(err), data)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, data, message)
}

// decodeImagePayload accepts raw base64 or a data: URL.
func decodeImagePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, stderrors.New("malformed data URL")
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(payload)
	}
	return data, nil
}
