package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"espresso-tracker/internal/backup"
	"espresso-tracker/internal/config"
	apphttp "espresso-tracker/internal/http"
	"espresso-tracker/internal/mail"
	"espresso-tracker/internal/repository/sqlite"
	"espresso-tracker/internal/service"
	"espresso-tracker/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	entryRepo := sqlite.NewEntryRepository(db)

	// users first: the legacy entry migration needs the users table in place
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := entryRepo.Init(ctx); err != nil {
		logger.Fatalf("init entry repository: %v", err)
	}

	userService := service.NewUserService(userRepo)
	entryService := service.NewEntryService(entryRepo)

	tokens := token.NewManager(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute,
		time.Duration(cfg.Auth.ResetTTLMinutes)*time.Minute,
	)

	var mailer mail.Mailer
	if cfg.Mail.Domain != "" && cfg.Mail.APIKey != "" {
		mailer = mail.NewMailgun(cfg.Mail.Domain, cfg.Mail.APIKey, cfg.Mail.Sender)
		logger.Infof("mail delivery via mailgun domain %s", cfg.Mail.Domain)
	} else {
		logger.Warn("mail delivery not configured, password reset mails will be skipped")
	}

	backupSvc, err := buildBackup(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup backup storage: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		userService,
		entryService,
		tokens,
		mailer,
		backupSvc,
		cfg.Backup.Bucket,
		cfg.Backup.KeyPrefix,
		cfg.Database.Path,
		cfg.Server.BaseURL,
		logger,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildBackup(ctx context.Context, cfg config.Config, logger *logrus.Logger) (backup.Service, error) {
	if cfg.Backup.Bucket == "" {
		logger.Info("backup bucket not configured, snapshots disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Backup.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Backup.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Backup.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s) for snapshots", cfg.Backup.Bucket, cfg.Backup.Region)
	return backup.NewS3Service(client), nil
}
