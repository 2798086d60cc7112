package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"desupply-backend/config"
	"desupply-backend/controllers"
	"desupply-backend/models"
	"desupply-backend/routes"
	"desupply-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	db := config.ConnectDB()

	db.AutoMigrate(
		&models.User{},
		&models.Invoice{},
		&models.FundingPosition{},
		&models.ReputationScore{},
		&models.Event{},
		&models.Account{},
		&models.PaymentReminderLog{},
	)

	policy := config.LoadPolicy()

	events := services.NewEventService(db)
	reputation := services.NewReputationService(db, policy.BlacklistThreshold)
	registry := services.NewRegistryService(db, events, reputation)
	assets := services.NewTokenLedger(db)
	engine := services.NewFundingEngine(db, assets, events, reputation, policy)
	gate := services.NewVerificationGate(
		pickOracle("GST_ORACLE_URL", services.GSTOracle{}, policy),
		pickOracle("ERP_ORACLE_URL", services.ERPOracle{}, policy),
		pickOracle("LOGISTICS_ORACLE_URL", services.LogisticsOracle{}, policy),
		policy.OracleTimeout,
	)

	// Daily payment reminders
	services.NewReminderService(db).StartScheduler()

	// Hourly default sweep: funded invoices past due date become defaulted
	sweeper := cron.New()
	sweeper.AddFunc("@hourly", func() {
		expired, err := engine.ExpireOverdue(context.Background())
		if err != nil {
			log.Printf("Default sweep failed: %v", err)
			return
		}
		if expired > 0 {
			log.Printf("Default sweep: %d invoice(s) defaulted", expired)
		}
	})
	sweeper.Start()

	r := routes.SetupRouter(routes.Controllers{
		Auth:     &controllers.AuthController{DB: db},
		Invoices: &controllers.InvoiceController{Gate: gate, Registry: registry, Engine: engine, Events: events},
		Lifecycle: &controllers.LifecycleController{
			Engine:     engine,
			Reputation: reputation,
			Assets:     assets,
		},
		Dashboard: &controllers.DashboardController{DB: db, Reputation: reputation},
	})
	printRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}

// pickOracle uses the HTTP-backed client when the provider URL is set and
// the deterministic stub otherwise.
func pickOracle(envKey string, stub services.Oracle, policy config.Policy) services.Oracle {
	if url := os.Getenv(envKey); url != "" {
		return services.NewHTTPOracle(url, policy.OracleTimeout)
	}
	return stub
}

func printRoutes(r *gin.Engine) {
	routes := r.Routes()
	for _, route := range routes {
		fmt.Printf("%-6s %s\n", route.Method, route.Path)
	}
}
