package router

import (
	"mimic/internal/rest"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetLogOddsRoutes(api *echo.Group, handler *rest.DispatchHandler, authRequired echo.MiddlewareFunc) {
	logOdds := api.Group("/log-odds", authRequired)

	logOdds.POST("/experiments", handler.SetupExperiment)
	logOdds.GET("/experiments/:name/runs", handler.ListRuns)
	logOdds.POST("/training", handler.SubmitTraining)
	logOdds.POST("/records", handler.SubmitRecordBuild)
	logOdds.POST("/contrast", handler.SubmitContrast)
	logOdds.POST("/inference", handler.SubmitInference)
}

func SetMetricsRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
