// Package platform wraps the commerce platform catalog API. Slug collisions
// surface as services.ErrConflict with the competing key in the message so
// the conflict resolver can act on them.
package platform
