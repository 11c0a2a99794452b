package engine

import (
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/decor"
)

// SetVisibility records the flag for kind and re-applies it to every live
// entity of that kind. Decorations are children of surfaces and count as
// surface-kind here: toggling KindSurface toggles them too, and toggling
// KindMesh never touches them.
func (e *Engine) SetVisibility(kind spatial.FeatureKind, visible bool) {
	e.do(func() {
		e.settings.SetVisible(kind, visible)
		switch kind {
		case spatial.KindSurface:
			e.surfaces.SetVisibility(visible)
			e.spawner.SetVisibility(visible)
		case spatial.KindMesh:
			e.meshes.SetVisibility(visible)
		}
		spatial.Opsf("[engine] %s visibility set to %t", kind, visible)
	})
}

// SetRenderStyle records r and re-materials every live reconstructed mesh.
// Surfaces pick it up on their next add or update.
func (e *Engine) SetRenderStyle(r spatial.RenderStyle) {
	e.do(func() {
		prev := e.settings.SetRenderStyle(r)
		e.meshes.ApplyStyle(r)
		spatial.Opsf("[engine] render style %s -> %s", prev, r)
	})
}

// SetTheme records t. Switching to a theme without decoration rules clears
// every decoration. Live materials and existing decorations are otherwise
// left alone unless ReconcileThemeOnSwitch is set, in which case every entity
// is restyled and decorations are respawned under the new rules.
func (e *Engine) SetTheme(t spatial.Theme) {
	e.do(func() {
		prev := e.settings.SetTheme(t)
		if prev == t {
			return
		}
		if !decor.Produces(t) {
			e.spawner.Clear()
		}
		if e.cfg.ReconcileThemeOnSwitch {
			e.surfaces.Restyle()
			e.meshes.Restyle()
			if decor.Produces(t) {
				e.spawner.Clear()
				for _, n := range e.surfaces.Notices() {
					e.spawner.FeatureAdded(n)
				}
			}
		}
		spatial.Opsf("[engine] theme %s -> %s (reconcile=%t)", prev, t, e.cfg.ReconcileThemeOnSwitch)
	})
}

// Restyle recomputes every live entity's material from the current theme
// and render style.
func (e *Engine) Restyle() {
	e.do(func() {
		e.surfaces.Restyle()
		e.meshes.Restyle()
	})
}

// Snapshot returns a status computed on the consumer, consistent with every
// event applied before it.
func (e *Engine) Snapshot() Status {
	var st Status
	e.do(func() {
		st = e.buildStatus()
	})
	return st
}
