// Package validation provides request validation for the scoring API.
package validation

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

// MaxSellerIDLength bounds seller ids accepted from clients.
const MaxSellerIDLength = 128

// sellerIDRegex accepts marketplace ids such as "seller_42" or UUIDs.
var sellerIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

var (
	ErrEmptySellerID   = errors.New("seller_id is required")
	ErrSellerIDTooLong = errors.New("seller_id exceeds maximum length")
	ErrSellerIDFormat  = errors.New("seller_id may contain only letters, digits and _ . : -")
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidateSellerID checks a client-supplied seller id.
func ValidateSellerID(id string) error {
	switch {
	case id == "":
		return ErrEmptySellerID
	case len(id) > MaxSellerIDLength:
		return ErrSellerIDTooLong
	case !sellerIDRegex.MatchString(id):
		return ErrSellerIDFormat
	}
	return nil
}

// ValidationError is one failed field check.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects failed checks.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and returns the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// SellerIDs checks a batch of ids against ValidateSellerID and a size cap.
func SellerIDs(field string, ids []string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(ids) == 0 {
			return &ValidationError{Field: field, Message: "must not be empty"}
		}
		if len(ids) > max {
			return &ValidationError{Field: field, Message: "too many ids"}
		}
		for _, id := range ids {
			if err := ValidateSellerID(id); err != nil {
				return &ValidationError{Field: field, Message: err.Error()}
			}
		}
		return nil
	}
}

// SellerIDParamMiddleware rejects malformed :seller_id parameters early.
func SellerIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("seller_id"); id != "" {
			if err := ValidateSellerID(id); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_seller_id",
					"message": err.Error(),
				})
				return
			}
		}
		c.Next()
	}
}
