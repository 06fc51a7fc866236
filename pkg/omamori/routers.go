package omamori

import (
	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/handler"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/middleware"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"The API version of the response",
		"", // empty string means: primitive string in the spec
	)

	notFoundResponse = fizz.Response(
		"404",
		"Not Found",
		nil, // no inline schema
		nil, // no content media type
		nil, // no extra headers
	)
)

func NewRouter(apiVersion string, controller *handler.OmamoriController) *fizz.Fizz {
	g := gin.Default()
	g.Use(APIVersionMiddleware(apiVersion))
	f := fizz.NewFromEngine(g)

	info := &openapi.Info{
		Title:       "Omamori atelier API v1",
		Description: "Composition, lifecycle and duplication of omamori",
		Version:     apiVersion,
	}

	root := f.Group("/v1", "API v1", "Omamori atelier V1 routes", middleware.RequireUser())

	root.POST("/omamori",
		[]fizz.OperationOption{
			fizz.Summary("Create a new omamori draft"),
			apiVersionHeader,
		},
		tonic.Handler(controller.CreateOmamori, 201),
	)

	root.GET("/omamori",
		[]fizz.OperationOption{
			fizz.Summary("List your omamori"),
			apiVersionHeader,
		},
		tonic.Handler(controller.ListOmamoris, 200),
	)

	root.GET("/omamori/:id",
		[]fizz.OperationOption{
			fizz.Summary("Retrieve one omamori with its elements"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.RetrieveOmamori, 200),
	)

	root.DELETE("/omamori/:id",
		[]fizz.OperationOption{
			fizz.Summary("Move an omamori to the trash"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.DeleteOmamori, 204),
	)

	root.POST("/omamori/:id/elements",
		[]fizz.OperationOption{
			fizz.Summary("Add an element on the next layer"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.AddElement, 201),
	)

	root.PUT("/omamori/:id/elements/background",
		[]fizz.OperationOption{
			fizz.Summary("Create or replace the background element"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.UpsertBackground, 200),
	)

	root.PATCH("/omamori/:id/elements/:elementId",
		[]fizz.OperationOption{
			fizz.Summary("Update props/transform of an element"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.UpdateElement, 200),
	)

	root.DELETE("/omamori/:id/elements/:elementId",
		[]fizz.OperationOption{
			fizz.Summary("Delete an element"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.DeleteElement, 204),
	)

	root.PUT("/omamori/:id/elements/order",
		[]fizz.OperationOption{
			fizz.Summary("Reorder the non-background elements"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.ReorderElements, 204),
	)

	root.POST("/omamori/:id/publish",
		[]fizz.OperationOption{
			fizz.Summary("Publish a draft omamori"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.Publish, 200),
	)

	root.POST("/omamori/:id/draft",
		[]fizz.OperationOption{
			fizz.Summary("Move an omamori back to draft"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.SaveDraft, 200),
	)

	root.POST("/omamori/:id/duplicate",
		[]fizz.OperationOption{
			fizz.Summary("Duplicate an omamori and its elements"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.Duplicate, 201),
	)

	f.GET("/v1/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
