package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/mailguard/mailguard-server/cmd/api"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/mailguard/mailguard-server/db"
	"github.com/mailguard/mailguard-server/storage"
	"gorm.io/gorm"
)

func main() {
    if len(os.Args) > 1 {
        switch os.Args[1] {
        case "migrate":
            runMigrations()
            return
        case "seed-serials":
            runSerialSeeding(os.Args[2:])
            return
        case "clear-db":
            runDatabaseClear()
            return
        default:
            log.Fatalf("Unknown command: %s", os.Args[1])
        }
    }

    startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		db.Close(DB)
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {

	migrations := map[interface{}]string{
		&models.DeviceSerial{}:  "DeviceSerial",
		&models.Device{}:        "Device",
		&models.Event{}:         "Event",
		&models.HealthReading{}: "HealthReading",
		&models.Notification{}:  "Notification",
		&models.Image{}:         "Image",
		&models.PushToken{}:     "PushToken",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	directories := []string{
		"uploads/captures",
	}

	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			log.Fatalf("Error creating directory %s: %v", dir, err)
		}
		log.Printf("Directory %s created/verified", dir)
	}

	log.Println("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

// runSerialSeeding provisions a batch of serial numbers, the step that
// normally happens when hardware leaves the factory. Usage:
// mailguard-server seed-serials [count]
func runSerialSeeding(args []string) {
	count := 10
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			log.Fatalf("Invalid serial count: %s", args[0])
		}
		count = parsed
	}

	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		db.Close(DB)
		log.Println("Database connection closed")
	}()

	for i := 0; i < count; i++ {
		serial := models.DeviceSerial{
			SerialNumber: fmt.Sprintf("MG-%s", strings.ToUpper(uuid.New().String()[:12])),
			IsValid:      true,
		}
		if err := DB.Create(&serial).Error; err != nil {
			log.Fatalf("Error creating serial: %v", err)
		}
		fmt.Println(serial.SerialNumber)
	}

	log.Printf("Seeded %d serial numbers", count)
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		db.Close(DB)
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	store, err := storage.NewDiskStore("uploads/captures", "/api/v1/captures")
	if err != nil {
		log.Fatalf("Storage initialization error: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB, store)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	log.Println("Shutting down server...")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
    if len(tables) == 0 {
        tables = []interface{}{
            &models.Image{},
            &models.Notification{},
            &models.HealthReading{},
            &models.Event{},
            &models.PushToken{},
            &models.Device{},
            &models.DeviceSerial{},
        }
    }

    log.Println("Dropping tables...")

    for _, table := range tables {
        if err := DB.Migrator().DropTable(table); err != nil {
            log.Printf("Warning dropping table %T: %v", table, err)
        } else {
            log.Printf("Table %T dropped", table)
        }
    }

    return nil
}

func runDatabaseClear() {
    DB, err := db.NewPSQLStorage()
    if err != nil {
        log.Fatalf("Database initialization error: %v", err)
    }
    defer func() {
        db.Close(DB)
        log.Println("Database connection closed")
    }()

    log.Println("Preparing to clear database...")

    var confirmation string
    fmt.Print("Are you sure you want to clear the database? (yes/no): ")
    fmt.Scanln(&confirmation)

    if confirmation != "yes" {
        log.Println("Database clearing cancelled.")
        return
    }

    var tableNames string
    fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
    fmt.Scanln(&tableNames)

    var tables []interface{}
    if tableNames != "" {
        for _, table := range strings.Split(tableNames, ",") {
            switch strings.TrimSpace(table) {
            case "Device":
                tables = append(tables, &models.Device{})
            case "DeviceSerial":
                tables = append(tables, &models.DeviceSerial{})
            case "Event":
                tables = append(tables, &models.Event{})
            case "HealthReading":
                tables = append(tables, &models.HealthReading{})
            case "Notification":
                tables = append(tables, &models.Notification{})
            case "Image":
                tables = append(tables, &models.Image{})
            case "PushToken":
                tables = append(tables, &models.PushToken{})
            default:
                log.Printf("Unknown table: %s", table)
            }
        }
    }

    if err := clearDatabase(DB, tables); err != nil {
        log.Fatalf("Error clearing database: %v", err)
    }

    log.Println("Database cleared successfully")
}
