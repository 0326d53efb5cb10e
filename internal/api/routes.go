package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes wires the handlers onto an echo instance.
func RegisterRoutes(e *echo.Echo, s *Server) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", s.HandleHealth)

	g := e.Group("/api")
	g.POST("/extract", s.HandleExtractSync)
	g.POST("/extractions", s.HandleCreateBatch)
	g.GET("/extractions", s.HandleListJobs)
	g.GET("/extractions/:id", s.HandleGetJob)
	g.GET("/extractions/:id/export", s.HandleExportJob)
	g.GET("/batches/:id", s.HandleGetBatch)
	g.GET("/batches/:id/export", s.HandleExportBatch)
	g.GET("/uploads", s.HandleListUploads)
	g.POST("/uploads/:id/extract", s.HandleReextract)
	g.DELETE("/uploads/:id", s.HandleDeleteUpload)
}
