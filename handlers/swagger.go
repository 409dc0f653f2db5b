package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>coursebay API docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "coursebay task services", "version": "v0.2.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } }
  },
  "paths": {
    "/api/v1/documents": {
      "get": { "summary": "List documents", "responses": { "200": { "description": "document summaries" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"},"content":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" }, "400": { "description": "invalid document" } } }
    },
    "/api/v1/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update name or content", "responses": { "200": { "description": "updated" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a document", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/v1/batches": {
      "get": { "summary": "List batches, newest first", "parameters": [{"name":"type","in":"query","schema":{"type":"string","enum":["document-import","document-regeneration","cdn-resources-consolidation"]}}], "responses": { "200": { "description": "batches" } } },
      "post": { "summary": "Create a batch of tasks", "security": [{"bearer": []}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["batchType"],"properties":{"batchType":{"type":"string"},"importSourceName":{"type":"string"},"documents":{"type":"array","items":{"type":"object","properties":{"key":{"type":"string"},"revision":{"type":"integer"}}}}}}}}}, "responses": { "201": { "description": "batch created" }, "400": { "description": "invalid request" }, "409": { "description": "a batch of this type is in progress" } } }
    },
    "/api/v1/batches/{id}": {
      "get": { "summary": "Batch with its tasks and progress", "responses": { "200": { "description": "batch details" }, "404": { "description": "not found" } } }
    },
    "/api/v1/tasks/{id}/process": {
      "post": { "summary": "Run one task now", "security": [{"bearer": []}], "responses": { "200": { "description": "outcome" }, "404": { "description": "not found" } } }
    },
    "/cdn/{path}": { "get": { "summary": "Download a CDN resource", "responses": { "200": { "description": "resource" }, "404": { "description": "not found" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
