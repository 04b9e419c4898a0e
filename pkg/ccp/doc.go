// Package ccp implements the Custom Communication Protocol: a length-prefixed
// framing protocol carried over TCP between a game-server host process and
// external client processes, supporting both stateless request/response
// exchanges and long-lived raw byte streams through a single named-plugin
// registry.
package ccp
