// Package identity defines the narrow collaborator interface the OAuth2
// subsystem needs from a user/application/credential service, together
// with an in-memory implementation seeded from configuration.
//
// Persistent CRUD management of users and applications is deliberately out
// of scope for the gateway; external services satisfying the Directory
// interface can be plugged in without touching the OAuth2 code.
package identity
