// Package obslog provides a fluent builder for structured logging fields,
// plus per-domain helper constructors, used across the core so every
// component logs with a consistent vocabulary.
package obslog

import (
	"time"

	"go.uber.org/zap"
)

// Fields is a chainable map of structured log fields.
type Fields map[string]interface{}

// Zap converts the accumulated fields into zap.Field values, in no
// particular order, for passing to a *zap.Logger call.
func (f Fields) Zap() []zap.Field {
	fields := make([]zap.Field, 0, len(f))
	for k, v := range f {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// NewFields returns an empty Fields builder.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) WorkspaceID(id string) Fields {
	if id != "" {
		f["workspace_id"] = id
	}
	return f
}

func (f Fields) DocumentID(id string) Fields {
	if id != "" {
		f["document_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	if id != "" {
		f["request_id"] = id
	}
	return f
}

func (f Fields) TraceID(id string) Fields {
	if id != "" {
		f["trace_id"] = id
	}
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// DatabaseFields is shorthand for logging a database operation against a
// table.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is shorthand for logging an inbound or outbound HTTP call.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// WorkspaceFields is shorthand for logging a workspace-scoped operation.
func WorkspaceFields(operation, workspaceID string) Fields {
	return NewFields().Component("workspace").Operation(operation).WorkspaceID(workspaceID)
}

// DocumentFields is shorthand for logging a document lifecycle operation.
func DocumentFields(operation, documentID string) Fields {
	return NewFields().Component("document").Operation(operation).DocumentID(documentID)
}

// RetrievalFields is shorthand for logging a retrieval-pipeline operation.
func RetrievalFields(stage, workspaceID string) Fields {
	return NewFields().Component("retrieval").Operation(stage).WorkspaceID(workspaceID)
}

// AIFields is shorthand for logging an embedding or LLM call.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// PerformanceFields is shorthand for logging the outcome of a timed
// operation.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(d).Custom("success", success)
}
