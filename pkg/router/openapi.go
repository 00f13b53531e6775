package router

import (
	"net/http"
	"os"
	"path/filepath"

	"supportbot/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// openAPIValidation builds the request validation middleware and serves the
// schema under /api/docs. An empty schemaPath uses the embedded schema.
func (r *Router) openAPIValidation(schemaPath string) (gin.HandlerFunc, error) {
	var (
		v   *validator.OpenAPIValidator
		err error
	)
	if schemaPath != "" {
		if !fileExists(schemaPath) {
			r.Logger.Warn("OpenAPI schema file not found, using embedded schema", "path", schemaPath)
			schemaPath = ""
		}
	}
	if schemaPath == "" {
		v, err = validator.New()
	} else {
		v, err = validator.NewOpenAPIValidator(schemaPath)
	}
	if err != nil {
		return nil, err
	}

	if schemaPath == "" {
		r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/yaml", validator.Schema())
		})
	} else {
		r.Engine.StaticFile("/api/docs/"+filepath.Base(schemaPath), schemaPath)
	}
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)

	return v.Middleware(), nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
