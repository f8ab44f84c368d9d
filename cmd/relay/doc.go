// Command relay runs the development relay server. It stores encrypted
// envelopes and published public keys, either in memory or in Redis when
// REDIS_URL is set.
package main
