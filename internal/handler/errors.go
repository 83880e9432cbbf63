package handler

import (
	"net/http"

	ierr "backoffice/internal/errors"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError maps err to its HTTP status and writes the user-facing message.
func respondError(c *gin.Context, err error) {
	status := ierr.HTTPStatusFromErr(err)
	msg := ierr.DisplayMessage(err)
	if status >= http.StatusInternalServerError && !ierr.IsHTTPClient(err) {
		msg = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, response.Error(status, msg))
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}
