// Package internal contains helper utilities that are intentionally
// private to authcore: token id generation, the refresh token wire codec,
// and secret hashing.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
