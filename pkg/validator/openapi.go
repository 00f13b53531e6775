package validator

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"supportbot/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var embeddedSchema []byte

// OpenAPIValidator validates requests against the API's OpenAPI document
type OpenAPIValidator struct {
	swagger    *openapi3.T
	router     routers.Router
	schemaPath string
	mutex      sync.RWMutex
}

// New returns a validator for the schema compiled into the binary
func New() (*OpenAPIValidator, error) {
	return newValidator(func(l *openapi3.Loader) (*openapi3.T, error) {
		return l.LoadFromData(embeddedSchema)
	}, "")
}

// NewOpenAPIValidator creates a validator from a schema file on disk
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	return newValidator(func(l *openapi3.Loader) (*openapi3.T, error) {
		return l.LoadFromFile(schemaPath)
	}, schemaPath)
}

func newValidator(load func(*openapi3.Loader) (*openapi3.T, error), path string) (*OpenAPIValidator, error) {
	swagger, router, err := compile(load)
	if err != nil {
		return nil, err
	}
	return &OpenAPIValidator{
		swagger:    swagger,
		router:     router,
		schemaPath: path,
	}, nil
}

func compile(load func(*openapi3.Loader) (*openapi3.T, error)) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	swagger, err := load(loader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load OpenAPI schema: %w", err)
	}

	if err := swagger.Validate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return swagger, router, nil
}

// ReloadSchema reloads the OpenAPI schema from disk
func (v *OpenAPIValidator) ReloadSchema() error {
	if v.schemaPath == "" {
		return nil
	}
	swagger, router, err := compile(func(l *openapi3.Loader) (*openapi3.T, error) {
		return l.LoadFromFile(v.schemaPath)
	})
	if err != nil {
		return err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.swagger = swagger
	v.router = router
	return nil
}

// Middleware rejects requests whose body does not match the documented shape.
// Authentication is enforced by its own middleware, not here.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v.mutex.RLock()
		router := v.router
		v.mutex.RUnlock()

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			// Route not documented, nothing to validate
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         false,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.Error(errors.NewBadRequestError("INVALID_REQUEST", describe(err)).WithCause(err))
			c.Abort()
			return
		}

		c.Next()
	}
}

// describe turns a validation error into a short client-facing message
func describe(err error) string {
	if reqErr, ok := err.(*openapi3filter.RequestError); ok {
		if schemaErr, ok := reqErr.Err.(*openapi3.SchemaError); ok {
			field := schemaErr.JSONPointer()
			if len(field) > 0 {
				return fmt.Sprintf("Invalid request: %s %s", field[len(field)-1], schemaErr.Reason)
			}
			return "Invalid request: " + schemaErr.Reason
		}
		if reqErr.Reason != "" {
			return "Invalid request: " + reqErr.Reason
		}
	}
	return "Invalid request body"
}

// Schema returns the OpenAPI document compiled into the binary
func Schema() []byte {
	return embeddedSchema
}
