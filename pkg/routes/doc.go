// Package routes maps route paths to the lifecycle hooks generated for them.
//
// Each route of an app exposes two hooks: Init runs once when a session is
// created and seeds its state, Event runs once per client event. The
// Registry is loaded at startup and only replaced as a whole, so a session
// keeps the Route it resolved for its entire lifetime.
package routes
