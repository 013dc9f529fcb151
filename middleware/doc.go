// Package middleware exposes an HTTP adapter for access token enforcement
// built on top of authcore.Engine verification.
//
// [Guard] reads the Authorization header, calls Engine.VerifyAccess, and
// injects the verified subject id into the request context. Verification
// is purely local: no store I/O happens on guarded requests.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the engine).
//   - Touch the token store (revocation only affects refresh tokens).
//   - Make authorization decisions beyond pass/reject.
package middleware
