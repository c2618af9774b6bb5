package router

import (
	"os"
	"path/filepath"

	"persona-chat/backend/pkg/validator"
)

// AddOpenAPIValidation validates requests against the schema and serves it under /api/docs.
// Call it before SetupRoutes so the validator runs ahead of the handlers.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if !fileExists(schemaPath) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator")
		return
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)

	r.Engine.StaticFile("/api/docs/openapi.yaml", schemaPath)
	r.Logger.Info("OpenAPI schema available", "url", "/api/docs/openapi.yaml", "file", filepath.Base(schemaPath))
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
