package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/hade267/doan-VND-sub000/utils"
)

func init() {
	// report validation errors under their JSON names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return ""
		})
	}
}

// ErrorHandler renders the last error attached with c.Error as
// {message, fields?, stack?, requestId}. Stacks are shown outside production only.
func ErrorHandler(production bool, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := toAppError(err)

		if appErr.Status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), "request failed",
				"request_id", GetRequestID(c), "path", c.FullPath(), "error", err)
		}

		body := gin.H{
			"message":   appErr.Message,
			"requestId": GetRequestID(c),
		}
		if len(appErr.Fields) > 0 {
			body["fields"] = appErr.Fields
		}
		for k, v := range appErr.Extra {
			body[k] = v
		}
		if !production && appErr.Err != nil {
			body["stack"] = fmt.Sprintf("%+v", appErr.Err)
		}
		c.JSON(appErr.Status, body)
	}
}

// Abort attaches err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func toAppError(err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[jsonFieldName(fe)] = validationMessage(fe)
		}
		return utils.ValidationError(fields)
	}

	var bindErr *gin.Error
	if errors.As(err, &bindErr) && bindErr.Type == gin.ErrorTypeBind {
		return utils.BadRequest("Invalid request body")
	}

	return utils.Internal(err)
}

// BindError converts a ShouldBind error into an AppError.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return toAppError(verrs)
	}
	return &utils.AppError{Status: http.StatusBadRequest, Message: "Invalid request body", Err: err}
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.StructField()
	}
	return toSnake(name)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a valid id"
	case "datetime":
		return "must be a date in format YYYY-MM-DD"
	case "numeric":
		return "must be numeric"
	}
	return "is invalid"
}

// Recovery turns panics into a 500 envelope.
func Recovery(production bool, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					"request_id", GetRequestID(c), "panic", fmt.Sprint(r), "stack", stack)

				body := gin.H{
					"message":   "Internal server error",
					"requestId": GetRequestID(c),
				}
				if !production {
					body["stack"] = fmt.Sprintf("%v\n%s", r, stack)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()
		c.Next()
	}
}
