package routes

import (
	"os"
	"time"

	"desupply-backend/config"
	"desupply-backend/controllers"
	"desupply-backend/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Controllers bundles the handler sets wired in main.
type Controllers struct {
	Auth      *controllers.AuthController
	Invoices  *controllers.InvoiceController
	Lifecycle *controllers.LifecycleController
	Dashboard *controllers.DashboardController
}

func SetupRouter(h Controllers) *gin.Engine {
	r := gin.Default()

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if extra := os.Getenv("FRONTEND_ORIGIN"); extra != "" {
		origins = append(origins, extra)
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.Use(config.PerformanceLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)

		auth.Use(utils.AuthMiddleware())
		auth.GET("/me", h.Auth.Me)
	}

	api := r.Group("/api")
	api.Use(utils.AuthMiddleware())
	{
		// Submission
		api.POST("/verify-and-mint", h.Invoices.VerifyAndMint)

		// Invoice routes
		invoices := api.Group("/invoices")
		{
			invoices.GET("/verified", h.Invoices.GetVerifiedInvoices)
			invoices.GET("/:tokenId", h.Invoices.GetInvoice)
			invoices.POST("/:tokenId/accept", h.Lifecycle.Accept)
			invoices.POST("/:tokenId/fund", h.Lifecycle.Fund)
			invoices.POST("/:tokenId/settle", h.Lifecycle.Settle)
		}

		// Audit trail
		api.GET("/events/:tokenId", h.Invoices.GetEvents)

		// Reputation and balances
		api.GET("/reputation/:address", h.Lifecycle.GetReputation)
		api.GET("/balances/:address", h.Lifecycle.GetBalance)
		api.POST("/faucet", h.Lifecycle.Faucet)

		// Dashboard routes
		api.GET("/dashboard", h.Dashboard.GetOverview)
	}

	return r
}
