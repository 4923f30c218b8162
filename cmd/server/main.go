package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/config"
	"github.com/tutorlink/tutorlink/internal/handlers"
	"github.com/tutorlink/tutorlink/internal/middleware"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/repository"
	"github.com/tutorlink/tutorlink/internal/service"
	"github.com/tutorlink/tutorlink/internal/sms"
	"github.com/tutorlink/tutorlink/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	verificationStore, err := initStore(cfg, dynamoClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize verification store")
	}
	defer verificationStore.Close()

	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	minter := service.NewTokenMinter(verificationStore, cfg.Token.TTL, logger)
	issuer := service.NewCodeIssuer(verificationStore, initGateways(cfg, logger), &cfg.Verification, cfg.SMS.Timeout, logger)
	verifier := service.NewCodeVerifier(verificationStore, minter, logger)
	validator := service.NewTokenValidator(verificationStore, logger)

	authHandlers := handlers.NewAuthHandlers(issuer, verifier, validator, jwtService, userRepo, logger)
	profileHandlers := handlers.NewProfileHandlers(validator, userRepo, logger)

	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)
	router := setupRouter(authHandlers, profileHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initStore(cfg *config.Config, dynamoClient *dynamodb.Client, logger *logrus.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Info("Redis verification store initialized")
		return store.NewRedis(client, logger), nil
	case "dynamodb":
		logger.Info("DynamoDB verification store initialized")
		return store.NewDynamo(dynamoClient, cfg.DynamoDB.TableName, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func initGateways(cfg *config.Config, logger *logrus.Logger) map[models.Channel]sms.Gateway {
	gateways := make(map[models.Channel]sms.Gateway)

	switch cfg.SMS.Provider {
	case "mobizon":
		gateways[models.ChannelSMS] = sms.NewMobizon(cfg.SMS.APIKey, cfg.SMS.Sender, cfg.SMS.Timeout, logger)
	default:
		gateways[models.ChannelSMS] = sms.NewLog(logger)
	}

	if cfg.SMTP.Host != "" {
		gateways[models.ChannelEmail] = sms.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
	} else {
		gateways[models.ChannelEmail] = sms.NewLog(logger)
	}

	return gateways
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	profileHandlers *handlers.ProfileHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/request-verification-code", authHandlers.RequestVerificationCode).Methods("POST", "OPTIONS")
	auth.HandleFunc("/verify-code", authHandlers.VerifyCode).Methods("POST", "OPTIONS")
	auth.HandleFunc("/register", authHandlers.Register).Methods("POST", "OPTIONS")

	profile := router.PathPrefix("/profile").Subrouter()
	profile.Use(authMiddleware.RequireAuth)
	profile.HandleFunc("/phone", profileHandlers.ChangePhone).Methods("PUT", "OPTIONS")

	return router
}
