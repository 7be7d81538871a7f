// Package routes holds the generated hooks of the app's routes.
//
// Each file defines one route: InitState runs when a client opens the
// route, with the handle holding the initial values set in the visual
// editor; HandleEvent runs for every event the client sends.
package routes

import (
	pkgroutes "github.com/atrilabs/atri-runtime/pkg/routes"
)

// All returns the generated routes.
func All() []pkgroutes.Route {
	return []pkgroutes.Route{
		{Path: "/", Init: InitState, Event: HandleEvent},
		Counter(),
	}
}

// Register adds the generated routes to reg.
func Register(reg *pkgroutes.Registry) error {
	for _, rt := range All() {
		if err := reg.RegisterRoute(rt); err != nil {
			return err
		}
	}
	return nil
}
