package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/utils"
)

func fail(c *gin.Context, err error) {
	middleware.Abort(c, err)
}

// bindJSON binds and validates the body. It reports false after
// aborting with a 400 when the body is invalid.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, middleware.BindError(err))
		return false
	}
	if v, ok := req.(interface{ Validate() map[string]string }); ok {
		if fields := v.Validate(); fields != nil {
			fail(c, utils.ValidationError(fields))
			return false
		}
	}
	return true
}

func bindQuery(c *gin.Context, q interface{}) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		fail(c, middleware.BindError(err))
		return false
	}
	return true
}
