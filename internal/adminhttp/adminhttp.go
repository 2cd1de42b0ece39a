// Package adminhttp exposes a small JSON status dashboard over the
// broker's Snapshot, grounded on sched/http.go's martini-based API.
package adminhttp

import (
	"net/http"

	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/render"
)

// New builds the martini handler tree for the admin dashboard. The
// caller decides how to run it (RunOnAddr, or mounted under an
// existing mux) -- the teacher's StartHttpServer always ran its own
// listener, which cmd/gearmand preserves.
func New(b *broker.Broker) *martini.ClassicMartini {
	mart := martini.Classic()
	mart.Use(render.Renderer(render.Options{
		IndentJSON: true,
	}))

	mart.Get("/status", func(r render.Render) {
		r.JSON(http.StatusOK, map[string]interface{}{"functions": b.Snapshot()})
	})

	mart.Get("/functions", func(r render.Render) {
		r.JSON(http.StatusOK, b.Snapshot())
	})

	mart.Get("/functions/:name", func(params martini.Params, r render.Render) {
		name := params["name"]
		for _, stat := range b.Snapshot() {
			if stat.Name == name {
				r.JSON(http.StatusOK, stat)
				return
			}
		}
		r.JSON(http.StatusNotFound, map[string]interface{}{"err": "unknown function"})
	})

	return mart
}
