package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"clinica-backend/audit"
	"clinica-backend/config"
	"clinica-backend/controllers"
	"clinica-backend/mailer"
	"clinica-backend/models"
	"clinica-backend/routes"
	"clinica-backend/security"
	"clinica-backend/services"
	"clinica-backend/store"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to Postgres with connection pooling")

	accounts := store.NewPostgresStore(db)
	if err := accounts.Migrate(context.Background()); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if err := seedAdmin(accounts); err != nil {
		log.Fatalf("Admin bootstrap failed: %v", err)
	}

	tokens := security.NewTokenManager(os.Getenv("JWT_SECRET"))
	recorder := audit.NewRecorder(accounts)

	var mail mailer.Sender = mailer.Disabled{}
	if smtp := mailer.NewSMTPFromEnv(); smtp.Configured() {
		mail = smtp
	}

	authSvc := services.NewAuthService(accounts, tokens, mail, recorder, services.AuthConfig{
		FrontendURL: frontendURL(),
		AdminEmail:  os.Getenv("ADMIN_EMAIL"),
	})
	adminSvc := services.NewAdminService(accounts, recorder)

	r := gin.Default()
	r.Use(security.CORSMiddleware())

	authCtrl := controllers.NewAuthController(authSvc, accounts)
	adminCtrl := controllers.NewAdminController(adminSvc)
	routes.AuthRoutes(r.Group("/api/auth"), authCtrl, authSvc)
	routes.AdminRoutes(r.Group("/api/admin"), adminCtrl, authSvc, accounts)

	srv := &http.Server{
		Addr:    ":" + config.Port(),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Clinic backend starting on port %s", config.Port())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down clinic backend...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Clinic backend forced to shutdown:", err)
	}

	log.Println("Clinic backend exited")
}

func frontendURL() string {
	if url := os.Getenv("FRONTEND_URL"); url != "" {
		return url
	}
	return "http://localhost:3000"
}

// seedAdmin creates the bootstrap administrator when ADMIN_EMAIL and
// ADMIN_PASSWORD are set and no such account exists yet. Accounts are
// never self-registered, so a fresh deployment needs this seed.
func seedAdmin(accounts store.AccountStore) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := accounts.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.Usuario{
		Email:        services.NormalizeEmail(email),
		PasswordHash: hash,
		Nombre:       "Administrador",
		Apellido:     "Sistema",
		Rol:          models.RolAdmin,
		Permisos:     models.DefaultPermisos(models.RolAdmin),
		Activo:       true,
	}
	if err := accounts.Create(ctx, admin); err != nil {
		return err
	}
	log.Printf("Seeded bootstrap admin %s", admin.Email)
	return nil
}
