// Package identity provides bearer-credential issuance, renewal, and
// group-based authorization backed by a pluggable credential store.
//
// Credential stores:
//   - Store abstracts user, group, and membership persistence. Two backends
//     ship with the package: an atomic JSON file store for small deployments
//     and a Bun-backed SQLite store for anything that needs transactions and
//     concurrent writers. Both hash passwords with bcrypt and never return
//     hashes to callers.
//
// Sessions:
//   - Auther verifies a username and password against the store and signs a
//     short-lived HS256 token carrying the user's groups. Expired tokens can
//     be renewed until an idle deadline passes; renewal re-reads the store so
//     revoked users cannot extend their sessions.
//
// Authorization:
//   - Authorizer checks a token's group claims against an allow-list. When
//     the cached claims miss, it consults an optional GroupLookup so tokens
//     minted before a membership change keep working without reissue. Every
//     denial collapses to the same error; causes are only logged.
//
// HTTPController and middleware/tokenware wire the above onto a go-router
// route table: open login and renew endpoints plus a group-gated management
// surface for users and groups.
package identity
