// controller/api_init.go
package controller

import "github.com/labstack/echo/v4"

func (ctrl *controller) apiInit(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.Use(ctrl.APIAuthMiddleware())

	// token management
	api.GET("/tokens", ctrl.apiListTokens)
	api.POST("/tokens", ctrl.apiCreateToken)
	api.DELETE("/tokens/:id", ctrl.apiRevokeToken)

	api.GET("/invoices", ctrl.apiInvoiceList)
	api.POST("/invoices", ctrl.apiInvoiceCreate)
	api.POST("/invoices/next-number", ctrl.apiInvoiceNextNumber)
	api.GET("/invoices/:number", ctrl.apiInvoiceGet)
	api.PUT("/invoices/:number", ctrl.apiInvoiceUpdate)
	api.DELETE("/invoices/:number", ctrl.apiInvoiceDelete)
	api.POST("/invoices/:number/duplicate", ctrl.apiInvoiceDuplicate)
	api.GET("/invoices/:number/status", ctrl.apiInvoiceStatus)
	api.POST("/invoices/:number/status", ctrl.apiInvoiceUpdateStatus)
	api.GET("/invoices/:number/timeline", ctrl.apiInvoiceTimeline)
	api.GET("/invoices/:number/einvoice.xml", ctrl.apiInvoiceEInvoice)

	api.GET("/exports/invoices.csv", ctrl.apiExportCSV)
	api.GET("/exports/saft.xml", ctrl.apiExportSAFT)

	api.GET("/dashboard", ctrl.apiDashboard)

	api.GET("/clients", ctrl.apiClientList)
	api.POST("/clients", ctrl.apiClientCreate)
	api.GET("/clients/:id", ctrl.apiClientGet)
	api.PUT("/clients/:id", ctrl.apiClientUpdate)
	api.DELETE("/clients/:id", ctrl.apiClientDelete)

	api.GET("/products", ctrl.apiProductList)
	api.POST("/products", ctrl.apiProductCreate)
	api.GET("/products/:id", ctrl.apiProductGet)
	api.PUT("/products/:id", ctrl.apiProductUpdate)
	api.DELETE("/products/:id", ctrl.apiProductDelete)

	api.GET("/receipts", ctrl.apiReceiptList)
	api.POST("/receipts", ctrl.apiReceiptCreate)
	api.GET("/receipts/:number", ctrl.apiReceiptGet)

	users := api.Group("/users", requireAdmin)
	users.GET("", ctrl.apiUserList)
	users.POST("", ctrl.apiUserCreate)
	users.PATCH("/:id", ctrl.apiUserUpdate)
	users.DELETE("/:id", ctrl.apiUserDelete)

	api.GET("/settings", ctrl.apiSettingsGet)
	api.PUT("/settings", ctrl.apiSettingsUpdate)
}
