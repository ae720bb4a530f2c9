// Package routes collects the HTTP routes. Each file registers itself from
// init, so adding a route never touches the server.
package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
)

// Registrar mounts a group of routes on r.
type Registrar func(r chi.Router, d deps.Deps)

var registrars []Registrar

// Register adds a registrar. Call it from init.
func Register(reg Registrar) {
	registrars = append(registrars, reg)
}

// RegisterAll mounts every registered group, in registration order.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, reg := range registrars {
		reg(r, d)
	}
}
