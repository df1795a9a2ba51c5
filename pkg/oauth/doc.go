// Package oauth integrates Google sign-in via OpenID Connect.
//
// The package owns the provider handshake: building the authorization
// URL, the state cookie that ties a callback to the browser that
// started the login, and exchanging the callback code for a verified ID
// token. What comes out is a Profile, the small set of claims the rest
// of the app needs. Whether that profile belongs to an existing user or
// becomes a pending registration is decided by the HTTP layer, not
// here.
package oauth
