// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Image operations
	OpImageDecode Op = "decode image"

	// Parameter cache operations
	OpCacheOpen  Op = "open parameter cache"
	OpCacheRead  Op = "read cached parameters"
	OpCacheSave  Op = "save parameters"
	OpCacheClear Op = "clear cached parameters"

	// Placement operations
	OpResolve Op = "resolve target point and opacity"

	// Compositor operations
	OpConnect       Op = "connect to compositor"
	OpCreateSurface Op = "create layer surface"
	OpAllocBuffer   Op = "allocate frame buffer"
	OpRender        Op = "render overlay"

	// Configuration
	OpConfigLoad Op = "load configuration"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
