// Package recipe is the reference recipe loader: it parses a declarative
// YAML document into the AWM list an application declared (§6). Recipe
// parsing is an external collaborator per §1's scope note — the core only
// needs something that satisfies appmgr.RecipeLoader — but a loader is
// implemented here so the rest of the system has real data to schedule.
package recipe
