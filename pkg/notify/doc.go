// Package notify sends invitation emails.
//
// The Mailer interface is deliberately tiny; the production deployment
// plugs in a real delivery provider, while the default LogMailer just
// records what would have been sent. Email delivery is best effort
// everywhere it is used: a failed send never fails the operation that
// triggered it, because the invitation link can always be copied from
// the admin UI.
package notify
