// Package billing tracks subscription records and decides entitlement.
//
// A subscription mirrors the state held by the payment provider; this
// package stores the mirror and answers the one question the rest of
// the app cares about: is this tenant currently entitled to use the
// product? Entitled means the subscription is active, or it is trialing
// and the trial window has not ended.
package billing
