package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/services"
)

const (
	auditBodyLimit = 2000
	maskedValue    = "***"
)

var sensitiveKeys = map[string]bool{
	"password": true, "old_password": true, "new_password": true,
	"bind_password": true, "secret": true, "token": true,
}

// Trailing route words that name the operation itself.
var auditVerbs = map[string]bool{
	"submit": true, "finalize": true, "close": true, "cancel": true, "complete": true, "logout": true,
}

// AuditRecorder stores audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e services.AuditEntry) error
}

// AuditLog records write operations (POST/PUT/PATCH/DELETE) after they run.
func AuditLog(recorder AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			body = auditBody(raw)
		}

		c.Next()

		route := parseRoute(c.FullPath(), method)
		status := c.Writer.Status()
		entry := services.AuditEntry{
			Level:      services.AuditInfo,
			Module:     route.module,
			Action:     route.action,
			Message:    formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status),
			EntityType: route.entity,
			RequestID:  GetRequestID(c),
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Extra: map[string]interface{}{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   body,
			},
		}
		if status >= http.StatusBadRequest {
			entry.Level = services.AuditWarning
		}
		if uid := GetUserID(c); uid > 0 {
			entry.UserID = &uid
		}
		if route.param != "" {
			if id, err := strconv.ParseUint(c.Param(route.param), 10, 64); err == nil {
				v := uint(id)
				entry.EntityID = &v
			}
		}
		// The response is already written; a lost entry is only logged.
		_ = recorder.Record(c.Request.Context(), entry)
	}
}

type routeInfo struct {
	module string // "Development Plans"
	action string // "Create", "Update Progress", "Finalize"
	entity string // static segment before the first parameter
	param  string // name of that parameter
}

// parseRoute derives audit labels from a gin route pattern, e.g.
// PUT /api/development-plans/items/:id/progress gives module "Development
// Plans", action "Update Progress", entity "items" keyed by :id.
func parseRoute(fullPath, method string) routeInfo {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(fullPath, "/api"), "/"), "/")
	info := routeInfo{module: "Unknown"}
	if len(segments) > 0 && segments[0] != "" {
		info.module = titleWords(segments[0])
	}

	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			info.param = seg[1:]
			if i > 0 {
				info.entity = segments[i-1]
			}
			break
		}
	}

	switch method {
	case http.MethodPost:
		info.action = "Create"
	case http.MethodPut, http.MethodPatch:
		info.action = "Update"
	case http.MethodDelete:
		info.action = "Delete"
	}
	n := len(segments)
	switch last := segments[n-1]; {
	case auditVerbs[last]:
		info.action = titleWords(last)
	case n >= 2 && strings.HasPrefix(segments[n-2], ":") && !strings.HasPrefix(last, ":"):
		info.action += " " + titleWords(last)
	}
	return info
}

func titleWords(segment string) string {
	words := strings.Fields(strings.ReplaceAll(segment, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatAuditMessage(username, method, path string, status int) string {
	if username == "" {
		username = "anonymous"
	}
	result := "Failed"
	if status >= 200 && status < 300 {
		result = "OK"
	}
	return fmt.Sprintf("[Audit] %s %s %s -> %s", username, method, path, result)
}

// auditBody masks credentials in a JSON body and truncates it. Bodies that
// are not JSON are kept out of the trail.
func auditBody(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "[non-json body omitted]"
	}
	out, err := json.Marshal(maskSensitive(v))
	if err != nil {
		return ""
	}
	s := string(out)
	if len(s) > auditBodyLimit {
		s = s[:auditBodyLimit] + "...[truncated]"
	}
	return s
}

func maskSensitive(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				t[k] = maskedValue
			} else {
				t[k] = maskSensitive(val)
			}
		}
	case []interface{}:
		for i := range t {
			t[i] = maskSensitive(t[i])
		}
	}
	return v
}
