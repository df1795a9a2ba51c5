// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every JSON response carries a success flag. Error responses:
//
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Not logged in")
//	httputil.WriteForbidden(w, "Insufficient permissions")
//
// produce {"success": false, "message": "..."}. Success responses:
//
//	httputil.WriteSuccess(w, map[string]interface{}{"invitation": inv})
//
// produce {"success": true, "invitation": {...}}.
//
// # Request Parsing
//
//	var req CreateInvitationRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	token, ok := httputil.ParsePathStringOrError(w, r, "token")
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1*1024*1024),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Session, role, and subscription middleware
package httputil
