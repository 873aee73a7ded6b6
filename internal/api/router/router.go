package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/adilzhm/notification-pipeline/internal/api/handlers/notification"
	"github.com/adilzhm/notification-pipeline/internal/middlewares"
)

func New(handler *notification.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api")
	{
		api.POST("/notifications", handler.Create)
		api.GET("/notifications/:id", handler.GetStatus)
		api.GET("/users/:id/notifications", handler.ListForUser)
	}

	return e
}
