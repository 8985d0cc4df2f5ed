// Package gumolog provides request-scoped structured logging in the
// format Google Cloud Logging ingests: severity, trace and span
// correlation fields and source locations. Outside of Google platforms it
// falls back to a plain human-readable format.
package gumolog

import "strings"

// Context carries the trace correlation fields attached to every log
// entry written by a logger.
type Context struct {
	// Trace is the fully qualified trace resource,
	// "projects/<project>/traces/<trace id>".
	Trace string
	// SpanID is the span within the trace.
	SpanID string
}

// ParseTraceContext builds a Context from an X-Cloud-Trace-Context header
// value of the form "TRACE_ID/SPAN_ID;o=TRACE_TRUE". A missing or
// malformed header yields an empty Context rather than a partially filled
// one.
func ParseTraceContext(projectID, header string) Context {
	slash := strings.IndexByte(header, '/')
	if slash < 1 {
		return Context{}
	}

	traceID := header[:slash]
	spanID := header[slash+1:]
	if semi := strings.IndexByte(spanID, ';'); semi >= 0 {
		spanID = spanID[:semi]
	}

	return Context{
		Trace:  "projects/" + projectID + "/traces/" + traceID,
		SpanID: spanID,
	}
}
