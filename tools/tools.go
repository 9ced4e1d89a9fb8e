//go:build tools

// Package tools lists the development tools this repo expects on PATH. They
// are installed with `go install` and deliberately kept out of go.mod.
package tools

// mockgen regenerates the gomock doubles in internal/core:
//
//	go install go.uber.org/mock/mockgen@v0.6.0
//	go generate ./internal/core
//
// air reloads cmd/storefront on change; with DEV=true templates are also
// read from frontend/templates on every render:
//
//	go install github.com/air-verse/air@v1.63.0
