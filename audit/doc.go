// Package audit writes the cache's optional diagnostic trail: one plain-text
// line per hit, write, delete, expiry, flush or storage error.
//
// The trail is meant for humans tailing a file while debugging a host
// application. It is not a structured log; see package observe for that.
package audit
