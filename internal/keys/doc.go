// Package keys owns the RSA key-pair lifecycle: generation off the calling
// goroutine, encrypted-at-rest persistence of the private half, and
// merge-style publication of the public half to the remote directory.
// Concurrent EnsureKeys calls for one user collapse into a single
// generation.
package keys
