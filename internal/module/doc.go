// Package module defines the Module value produced by the build pipeline,
// module identifier normalization, and the typed build errors shared by every
// stage.
//
// This package is the foundational layer: all other internal packages import
// module; module imports nothing internal.
package module
