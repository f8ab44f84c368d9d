// Package commands defines the cipherchat CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init           Generate and publish encryption keys for an account
//   - fingerprint    Print the local key fingerprint
//   - send           Encrypt and send a message to a room
//   - watch          Follow a room, decrypting messages as they arrive
//   - regenerate     Replace the local key pair
//   - clear-cache    Drop the decrypted message cache for a room
//
// # Implementation
//
// The root command builds a dependency graph (key store, message cache,
// remote client, key service) before any subcommand runs, so handlers
// share one app context.
package commands
