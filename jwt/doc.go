// Package jwt encodes and verifies short-lived access tokens.
//
// The [Manager] signs access tokens with HS256 or Ed25519 and validates
// them with issuer, audience, and bounded-leeway checks. All key material
// is instance-scoped, and verification keys can be keyed by kid to allow
// rotation without invalidating in-flight tokens.
package jwt
