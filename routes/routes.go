package routes

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"budget-sync/handlers"
	"budget-sync/services"
	"budget-sync/store"
)

// Deps carries the shared infrastructure the route groups wire into their
// handlers.
type Deps struct {
	DB          *sql.DB
	Expenses    *store.ExpenseStore
	Goals       *store.GoalStore
	Suggestions *store.SuggestionStore
	Profiles    *store.ProfileStore
	Dashboards  *services.DashboardManager
	Generator   *services.SuggestionService
	Hub         *handlers.WSHandler
}

// SetupAuthRoutes sets up public authentication routes.
func SetupAuthRoutes(rg *gin.RouterGroup, deps Deps) {
	authHandler := &handlers.AuthHandler{DB: deps.DB, Profiles: deps.Profiles}

	rg.POST("/auth/signup", authHandler.Signup)
	rg.POST("/auth/login", authHandler.Login)
}

// SetupAccountRoutes sets up protected account management routes.
func SetupAccountRoutes(rg *gin.RouterGroup, deps Deps) {
	authHandler := &handlers.AuthHandler{DB: deps.DB, Profiles: deps.Profiles}

	rg.POST("/auth/2fa/setup", authHandler.SetupTOTP)
	rg.POST("/auth/2fa/enable", authHandler.EnableTOTP)
}

// SetupEntityRoutes sets up the protected CRUD routes. Every accepted write
// is followed by a change broadcast so open collections refetch.
func SetupEntityRoutes(rg *gin.RouterGroup, deps Deps) {
	expenseHandler := &handlers.ExpenseHandler{Store: deps.Expenses, Hub: deps.Hub}
	rg.GET("/expenses", expenseHandler.GetExpenses)
	rg.POST("/expenses", expenseHandler.CreateExpense)
	rg.PUT("/expenses/:id", expenseHandler.UpdateExpense)
	rg.DELETE("/expenses/:id", expenseHandler.DeleteExpense)

	goalHandler := &handlers.GoalHandler{Store: deps.Goals, Hub: deps.Hub}
	rg.GET("/goals", goalHandler.GetGoals)
	rg.POST("/goals", goalHandler.CreateGoal)
	rg.PUT("/goals/:id", goalHandler.UpdateGoal)
	rg.DELETE("/goals/:id", goalHandler.DeleteGoal)

	suggestionHandler := &handlers.SuggestionHandler{
		Store:     deps.Suggestions,
		Generator: deps.Generator,
		Expenses:  deps.Expenses,
		Goals:     deps.Goals,
		Profiles:  deps.Profiles,
		Hub:       deps.Hub,
	}
	rg.GET("/suggestions", suggestionHandler.GetSuggestions)
	rg.POST("/suggestions/generate", suggestionHandler.GenerateSuggestions)
	rg.PUT("/suggestions/:id", suggestionHandler.SaveSuggestion)
	rg.DELETE("/suggestions/:id", suggestionHandler.DeleteSuggestion)

	profileHandler := &handlers.ProfileHandler{Store: deps.Profiles, Hub: deps.Hub}
	rg.GET("/profile", profileHandler.GetProfile)
	rg.PUT("/profile", profileHandler.UpdateProfile)
}

// SetupDashboardRoutes sets up the derived-view routes.
func SetupDashboardRoutes(rg *gin.RouterGroup, deps Deps) {
	dashboardHandler := &handlers.DashboardHandler{Dashboards: deps.Dashboards}

	rg.GET("/dashboard", dashboardHandler.GetDashboard)
	rg.POST("/dashboard/alerts/:id/dismiss", dashboardHandler.DismissAlert)
}
