package handler

import (
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	catalog := router.Group("/api/catalog")
	{
		catalog.GET("/products", h.SearchProducts)
	}
}

// SearchProducts lists catalog products that can be added to a document
// @Summary      Search products
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "Match on product or category name"
// @Success      200     {object}  response.Response{data=[]lineeditor.Product}
// @Failure      502     {object}  response.Response
// @Router       /api/catalog/products [get]
func (h *CatalogHandler) SearchProducts(c *gin.Context) {
	products, err := h.catalogService.SearchProducts(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, products))
}
