package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

var badRequestKinds = []error{
	domainwf.ErrValidation,
	domainwf.ErrNotInitialStage,
	domainwf.ErrInvalidTransition,
	domainwf.ErrConditionFailed,
	domainwf.ErrNoSubmitTransition,
	domainwf.ErrNothingToResolve,
	domainwf.ErrMissingUpdates,
	domainwf.ErrNoOriginatingStage,
	domainwf.ErrNotOfficerStage,
}

// statusOf maps an engine error to its HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrStoreConflict):
		return http.StatusConflict
	}
	for _, kind := range badRequestKinds {
		if errors.Is(err, kind) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// detailsOf extracts the structured payload of typed errors
func detailsOf(err error) interface{} {
	var verr *domainwf.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	var cerr *domainwf.ConditionError
	if errors.As(err, &cerr) {
		return gin.H{"key": cerr.Key, "expected": cerr.Expected}
	}
	var merr *domainwf.MissingUpdatesError
	if errors.As(err, &merr) {
		return gin.H{"missing": merr.Keys}
	}
	var serr *domainwf.NoSubmitTransitionError
	if errors.As(err, &serr) {
		return gin.H{"stage": serr.Stage, "role": serr.Role}
	}
	var nerr *domainwf.NotFoundError
	if errors.As(err, &nerr) {
		return gin.H{"kind": nerr.Kind, "id": nerr.ID}
	}
	return nil
}

// fail writes an error response; store failures are logged and hidden
func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	status := statusOf(err)
	resp := Response{Success: false, Error: err.Error(), Details: detailsOf(err)}
	if status == http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		resp = Response{Success: false, Error: msg}
	}
	c.JSON(status, resp)
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// bind decodes a JSON body; an empty body leaves req untouched
func (h *Handlers) bind(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = "failed on " + fe.Tag()
		}
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body", Details: fields})
		return false
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
	return false
}

// paramID parses a positive integer path parameter
func paramID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid " + name})
		return 0, false
	}
	return id, true
}
