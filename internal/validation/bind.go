package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid_request_body",
			"detail": err.Error(),
		})
		return err
	}
	return validate(c, out, v)
}

// BindQueryAndValidate is BindAndValidate for the query string.
func BindQueryAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindQuery(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid_query",
			"detail": err.Error(),
		})
		return err
	}
	return validate(c, out, v)
}

func validate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
