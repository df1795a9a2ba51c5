// Package api exposes the HTTP surface: invitation management, Google
// sign-in, registration completion and password login.
//
// Responses use a {success, ...} envelope throughout. Typed domain
// errors map to 4xx with a human-readable message; anything unexpected
// is a generic 500 with the detail kept in the logs. The subscription
// gate and the session middleware are applied at the router level in
// Server, so individual handlers only see requests that already carry
// whatever identity exists.
package api
