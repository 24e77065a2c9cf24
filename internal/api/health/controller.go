package health

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type (
	HealthDto struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}

	Controller struct{}
)

const serviceName = "tiktok-downloader"

func New() *Controller { return &Controller{} }

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("", controller.get)
}

func (controller *Controller) get(ec echo.Context) error {
	return ec.JSON(http.StatusOK, HealthDto{Status: "healthy", Service: serviceName})
}
