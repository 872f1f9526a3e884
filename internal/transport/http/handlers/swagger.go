package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"
)

const swaggerDocURL = "/docs/doc.json"

// RegisterSwagger mounts the Swagger UI under /docs once `swag init` output has
// registered itself. It reports whether the route was mounted.
func RegisterSwagger(r gin.IRouter) bool {
	return registerSwagger(r, swag.Name)
}

func registerSwagger(r gin.IRouter, instance string) bool {
	if _, err := swag.ReadDoc(instance); err != nil {
		return false
	}
	r.GET("/docs/*any", ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.URL(swaggerDocURL),
		ginSwagger.InstanceName(instance),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))
	return true
}
