// Package textutil holds small string helpers shared by the CLI and the
// pipeline: human-readable step labels and filesystem-safe tokens.
package textutil
