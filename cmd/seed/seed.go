package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"elearning-platform/internal/config"
	"elearning-platform/models"
	"elearning-platform/services"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to MongoDB
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := services.NewMongoUserRepository(client.Database(cfg.DBName))
	// Seeding never issues tokens.
	authService := services.NewAuthService(users, nil, cfg.BcryptCost)

	email := getEnv("ADMIN_EMAIL", "admin@example.com")
	username := getEnv("ADMIN_USERNAME", "admin")
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "ChangeMe123!"
		fmt.Println("WARNING: Using default password. Set ADMIN_PASSWORD environment variable!")
	}

	if existing, err := users.FindByEmail(ctx, email); err == nil {
		fmt.Println("Admin user already exists")
		fmt.Printf("   Email: %s\n", existing.Email)
		fmt.Printf("   Role: %s\n", existing.Role)
		return
	} else if !errors.Is(err, services.ErrNotFound) {
		log.Fatalf("Failed to look up admin user: %v", err)
	}

	user, err := authService.CreateUser(ctx, email, username, "Platform Administrator", password, models.RoleAdmin)
	if err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	fmt.Println("Admin user created successfully")
	fmt.Printf("   Username: %s\n", user.Username)
	fmt.Printf("   Email: %s\n", user.Email)
	fmt.Printf("   User ID: %s\n", user.ID.Hex())
	fmt.Println("\nIMPORTANT: Change the password after first login!")
	fmt.Println("   Login at POST http://localhost:8080/api/v1/auth/login")
}
