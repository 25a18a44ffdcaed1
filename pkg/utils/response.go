package utils

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the envelope for successful API responses
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Meta      interface{} `json:"meta,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the envelope for failed API responses
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error"`
	Code      int         `json:"code"`
	Timestamp string      `json:"timestamp"`
	Request   RequestInfo `json:"request"`
	Details   interface{} `json:"details,omitempty"`
}

// RequestInfo echoes the failed request
type RequestInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
}

// routes listed in 404 suggestions
var knownEndpoints = []string{
	"/health",
	"/metrics",
	"/api/v1/help",
	"/api/v1/watches",
	"/api/v1/watches/:id",
	"/api/v1/channels/:channel_id/watches",
	"/api/v1/entities/search",
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Timestamp: timestamp()})
}

func SendSuccessWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta, Timestamp: timestamp()})
}

func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data, Timestamp: timestamp()})
}

// SendError sends an error envelope; 404s carry endpoint suggestions
func SendError(c *gin.Context, statusCode int, message string) {
	var details interface{}
	if statusCode == http.StatusNotFound {
		if suggestions := suggestEndpoints(c.Request.URL.Path); len(suggestions) > 0 {
			details = gin.H{"suggestions": suggestions}
		}
	}
	SendErrorWithDetails(c, statusCode, message, details)
}

// SendErrorWithDetails sends an error envelope carrying structured details
func SendErrorWithDetails(c *gin.Context, statusCode int, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Error:     message,
		Code:      statusCode,
		Timestamp: timestamp(),
		Request: RequestInfo{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  c.Request.URL.RawQuery,
		},
		Details: details,
	})
}

// suggestEndpoints returns known routes sharing a meaningful path segment with path
func suggestEndpoints(path string) []string {
	path = strings.ToLower(path)

	var out []string
	for _, endpoint := range knownEndpoints {
		for _, segment := range strings.Split(strings.Trim(endpoint, "/"), "/") {
			if segment == "api" || segment == "v1" || strings.HasPrefix(segment, ":") {
				continue
			}
			if strings.Contains(path, strings.TrimSuffix(segment, "s")) {
				out = append(out, endpoint)
				break
			}
		}
	}
	return out
}
