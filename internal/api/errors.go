package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cafehub/internal/apperr"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindConflict, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind", "details"}. Internal causes
// are logged, never returned.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	_ = c.Error(err)

	body := gin.H{"kind": kind}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	} else {
		body["error"] = err.Error()
		if details := apperr.DetailsOf(err); details != nil {
			body["details"] = details
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	respondError(c, apperr.Validation("%s", err.Error()))
}

// bindOptionalJSON binds a body that may be omitted entirely. A present but
// malformed body is still a bad request.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		respondError(c, apperr.Validation("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return uint(v), true
}

func uintQuery(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(c, apperr.Validation("invalid %s %q", name, raw))
		return 0, false
	}
	return uint(v), true
}
