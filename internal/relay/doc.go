// Package relay implements the development relay server: a small HTTP
// service that stores encrypted envelopes per room and public keys per
// user. It never sees plaintext or private keys. Storage is pluggable;
// an in-process store and a Redis-backed store are provided.
package relay
