// Package authcore issues, rotates, and revokes authentication tokens.
//
// The engine mints short-lived signed access tokens paired with
// long-lived opaque refresh tokens. Each refresh token is single-use:
// consuming it yields a successor in the same family, and presenting a
// consumed token again revokes the entire family on the assumption that
// the token leaked. Logout revokes one token; LogoutAll revokes every
// token a subject holds.
//
// Construct an engine through the builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithTokenStore(token.NewMemoryStore()).
//		WithUserProvider(provider).
//		Build()
//
// Persistence is pluggable via [token.Store]; Redis and Postgres
// implementations live in token/redis and token/postgres. Audit events,
// in-process metrics, and domain event publication (Kafka, SNS) are
// optional and off by default.
package authcore
