// Package inbound exposes the broker over HTTP. The surface is deliberately
// framework-free: handlers are registered on a net/http mux so hosts can
// mount them under their own router and middleware stack. Session identity
// comes from an injected SessionResolver, never from this package.
package inbound
