package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute key constructors shared by metric call sites.

func methodAttr(method string) attribute.KeyValue {
	return attribute.String("method", method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String("path", path)
}

func statusAttr(code int) attribute.KeyValue {
	return attribute.Int("status", code)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String("kind", kind)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}
