package apiv1

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The served OpenAPI document must stay loadable and in sync with the
// routes registered in routes.go.
func TestOpenAPIDocumentIsValid(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))

	for _, path := range []string{
		"/ping",
		"/user/profile",
		"/user/subscription",
		"/user/subscription/cancel",
		"/user/invoices",
		"/user/books",
		"/user/books/{id}",
	} {
		assert.NotNil(t, doc.Paths.Find(path), "path %s missing from document", path)
	}
}
