// Package invitations manages single-use invitation tokens.
//
// An invitation binds an email address to an organization and a role
// chosen by the inviter. The token is a 32-byte random value encoded as
// hex; it is the only credential needed to verify an invitation, so
// tokens are never logged. Invitations expire after a TTL (7 days by
// default) and transition pending -> accepted exactly once via a
// conditional update, which is what prevents two concurrent join
// attempts from both consuming the same invitation.
package invitations
