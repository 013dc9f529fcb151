// Package password hashes and verifies credential secrets with argon2id.
//
// Hashes are stored as self-describing PHC strings, so cost parameters
// can be raised over time: Verify honors the parameters embedded in each
// stored hash, and NeedsRehash flags hashes produced under weaker
// settings for replacement after the next successful login.
package password
