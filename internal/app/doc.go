// Package app wires stores, services, and clients into a running client.
package app
