package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"podplayer/internal/api"
	"podplayer/internal/db"
	"podplayer/internal/device"
	"podplayer/internal/handlers"
	"podplayer/internal/middleware"
	"podplayer/internal/player"
	"podplayer/internal/resolver"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	db.InitDB()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		log.Fatal("API_BASE_URL is not set")
	}

	deviceID := device.ID()
	deviceType := device.Type(os.Getenv("DEVICE_USER_AGENT"))
	log.Printf("Device %s (%s)", deviceID, deviceType)

	client := api.NewClient(baseURL, os.Getenv("API_TOKEN"))

	media, err := player.NewMPVMedia()
	if err != nil {
		log.Fatalf("Failed to start media backend: %v", err)
	}

	controller := player.NewController(client, resolver.New(client), media, player.Config{
		DeviceID:   deviceID,
		DeviceType: deviceType,
	})

	h := handlers.New(controller)
	rl := middleware.NewRateLimiterMiddleware(rate.Limit(5), 10)

	r := mux.NewRouter()
	r.Use(rl.Middleware)
	r.HandleFunc("/play", h.PostPlay).Methods(http.MethodPost)
	r.HandleFunc("/pause", h.PostPause).Methods(http.MethodPost)
	r.HandleFunc("/resume", h.PostResume).Methods(http.MethodPost)
	r.HandleFunc("/seek", h.PostSeek).Methods(http.MethodPost)
	r.HandleFunc("/rate", h.PostRate).Methods(http.MethodPost)
	r.HandleFunc("/stop", h.PostStop).Methods(http.MethodPost)
	r.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	r.HandleFunc("/positions", h.GetPositions).Methods(http.MethodGet)
	r.HandleFunc("/positions", h.DeletePositions).Methods(http.MethodDelete)

	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Control API starting on :%s (commit: %s)", port, CommitSHA)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Teardown checkpoint: one last local write and the session beacon
	// before anything else gets torn down.
	log.Println("Shutting down")
	controller.Shutdown()
	media.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
