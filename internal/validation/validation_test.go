package validation

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/facegate/internal/idgen"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hel\x00lo", 10, "hello"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeString(tc.input, tc.maxLen), "input %q", tc.input)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	errs := Validate(
		Required("scenario", " "),
		InRange("confidence", 1.5, 0, 1),
		InRange("x", 0.5, 0, 1),
		NonNegative("faceCount", -1),
		MaxLength("message", "abcdef", 3),
	)
	assert.Len(t, errs, 4)
	assert.Equal(t, "scenario: is required", errs.Error())
}

func TestInRangeRejectsNonFinite(t *testing.T) {
	assert.NotNil(t, InRange("c", math.NaN(), 0, 1)())
	assert.NotNil(t, InRange("c", math.Inf(1), 0, 1)())
	assert.Nil(t, InRange("c", 0, 0, 1)())
	assert.Nil(t, InRange("c", 1, 0, 1)())
}

func TestOneOf(t *testing.T) {
	assert.Nil(t, OneOf("signal", "", "a", "b")())
	assert.Nil(t, OneOf("signal", "b", "a", "b")())
	err := OneOf("signal", "c", "a", "b")()
	if assert.NotNil(t, err) {
		assert.Equal(t, "must be one of a, b", err.Message)
	}
}

func TestValidID(t *testing.T) {
	assert.Nil(t, ValidID("session", "", "ses_")())
	assert.Nil(t, ValidID("session", idgen.WithPrefix("ses_"), "ses_")())
	assert.NotNil(t, ValidID("session", "ses_nope", "ses_")())
}

func TestIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sessions/:id", IDParamMiddleware("ses_"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/ses_bad", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_id")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+idgen.WithPrefix("ses_"), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"frame":"way too large"}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
