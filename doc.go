// Package authflow implements the signup, verification, login, and password
// recovery lifecycle behind TaskFlow's account system.
//
// One state machine, two backends:
//   - Service runs the lifecycle locally against four injected stores
//     (credentials, pending signups, recovery codes, single session). Stores
//     ship in two flavors: JSON key-value storage (see Storage) for the
//     single-profile demo mode, and bun repositories for SQL persistence.
//   - RemoteClient speaks the same contract to a remote auth API over HTTP,
//     keeping only a bearer token locally. CheckSession never propagates
//     transport errors; any failure reads as "no session" and clears the
//     stored token.
//
// The Backend interface abstracts over both so callers pick a variant at
// construction time. The server side of the HTTP contract lives in
// APIController and cmd/authd.
package authflow
