package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpapi "github.com/immxrtalbeast/meshtalk/internal/api/http"
	"github.com/immxrtalbeast/meshtalk/internal/config"
	"github.com/immxrtalbeast/meshtalk/internal/registry"
	"github.com/immxrtalbeast/meshtalk/internal/relay"
	"github.com/immxrtalbeast/meshtalk/internal/repository"
	"github.com/immxrtalbeast/meshtalk/internal/repository/model"
	"github.com/immxrtalbeast/meshtalk/internal/service"
	"github.com/immxrtalbeast/meshtalk/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	userRepo, meetingRepo := setupRepositories(cfg, log)

	reg := registry.New(log, cfg.Chat.HistoryLimit)
	router := relay.New(reg, log)

	userService := service.NewUserService(userRepo, cfg.Auth.Secret, cfg.Auth.TokenTTL, log)
	meetingService := service.NewMeetingService(meetingRepo, log)

	callController := httpapi.NewCallController(router, log)
	userController := httpapi.NewUserController(userService)
	meetingController := httpapi.NewMeetingController(meetingService)

	engine := httpapi.SetupRouter(callController, userController, meetingController, httpapi.AuthRequired(userService))

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
	if err := engine.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

// setupRepositories picks gorm-backed persistence when a dsn is configured
// and falls back to in-memory stores otherwise. Room and chat state is
// ephemeral by design, so only users and meeting history live here.
func setupRepositories(cfg *config.Config, log *slog.Logger) (repository.UserRepository, repository.MeetingRepository) {
	if cfg.Database.DSN == "" {
		log.Warn("no database dsn configured, using in-memory repositories")
		return repository.NewInMemoryUserRepository(), repository.NewInMemoryMeetingRepository()
	}

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	return repository.NewPostgresUserRepository(db), repository.NewPostgresMeetingRepository(db)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.User{}, &model.Meeting{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
