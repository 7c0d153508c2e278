package api

import "github.com/gofiber/fiber/v3"

// Register mounts the JSON API under r.
func Register(r fiber.Router, store Store, defaultProvider string, usage UsageReporter) {
	domains := NewDomainHandler(store, defaultProvider, usage)
	runs := NewRunHandler(store)
	backlinks := NewBacklinkHandler(store)

	r.Post("/domains", domains.Create)
	r.Get("/domains/:id", domains.Get)
	r.Post("/domains/:id/runs", domains.EnqueueRun)
	r.Get("/domains/:id/runs", domains.ListRuns)
	r.Get("/domains/:id/ref-domains", domains.ListRefDomains)
	r.Get("/domains/:id/usage", domains.Usage)

	r.Get("/runs/:id", runs.Get)
	r.Get("/runs/:id/delta", runs.Delta)
	r.Get("/runs/:id/backlinks", runs.Backlinks)
	r.Get("/runs/:id/anchors", runs.Anchors)

	r.Patch("/backlinks/:id/action", backlinks.SetAction)
}
