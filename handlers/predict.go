package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"audioembed/middleware"
	"audioembed/services"
	"audioembed/types"

	"github.com/gin-gonic/gin"
)

// PredictHandler serves the embedding endpoint
type PredictHandler struct {
	pipeline       *services.Pipeline
	maxUploadBytes int64
}

// NewPredictHandler creates a new predict handler. Each uploaded file may be
// at most maxUploadBytes long; zero means no limit.
func NewPredictHandler(p *services.Pipeline, maxUploadBytes int64) *PredictHandler {
	return &PredictHandler{
		pipeline:       p,
		maxUploadBytes: maxUploadBytes,
	}
}

// Predict generates audio embeddings from uploaded files or urls
func (h *PredictHandler) Predict(c *gin.Context) {
	requestID := middleware.GetRequestID(c)

	input, err := readInput(c, h.maxUploadBytes)
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	res, err := h.pipeline.Run(c.Request.Context(), requestID, input, nil)
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	status := "ok"
	if res.Partial() {
		status = "partial"
	}
	c.JSON(http.StatusOK, types.PredictResponse{
		Status:    status,
		RequestID: res.RequestID,
		Embedding: res.Embeddings,
		Failures:  res.Failures,
	})
}

// readInput collects the "audio" files and "url" values of the request
func readInput(c *gin.Context, maxUploadBytes int64) (types.Input, error) {
	var input types.Input

	var urlValues []string
	urlValues = append(urlValues, c.QueryArray("url")...)
	urlValues = append(urlValues, c.PostFormArray("url")...)
	input.URLs = services.SplitURLs(urlValues...)

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return input, nil
		}
		return input, types.InvalidRequest("parse multipart form: %v", err)
	}

	for _, fh := range form.File["audio"] {
		data, err := readUpload(fh, maxUploadBytes)
		if errors.Is(err, errUploadTooLarge) {
			return input, types.InvalidRequest("upload %q exceeds %d bytes", fh.Filename, maxUploadBytes)
		}
		if err != nil {
			return input, types.InvalidRequest("read upload %q: %v", fh.Filename, err)
		}
		input.Uploads = append(input.Uploads, types.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return input, nil
}

var errUploadTooLarge = errors.New("upload too large")

func readUpload(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := io.Reader(f)
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errUploadTooLarge
	}
	return data, nil
}

// respondError maps pipeline errors onto HTTP status codes
func respondError(c *gin.Context, requestID string, err error) {
	resp := types.PredictResponse{
		Status:    "error",
		RequestID: requestID,
		Message:   err.Error(),
	}

	var be *types.BatchError
	if errors.As(err, &be) {
		resp.Failures = be.Failures
		resp.Message = fmt.Sprintf("%d item(s) failed", len(be.Failures))
	} else {
		var e *types.Error
		if errors.As(err, &e) && e.Index >= 0 {
			resp.Failures = []types.ItemFailure{types.FailureOf(e.Index, e.Key, err)}
		}
	}

	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Printf("Request %s failed: %v", requestID, err)
	}
	c.JSON(code, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, types.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
