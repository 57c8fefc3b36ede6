package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram-otp/internal/application/linking"
	"github.com/go-telegram-otp/internal/application/linktoken"
	"github.com/go-telegram-otp/internal/application/otp"
	"github.com/go-telegram-otp/internal/config"
	"github.com/go-telegram-otp/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-telegram-otp/internal/infrastructure/jwt"
	"github.com/go-telegram-otp/internal/infrastructure/telegram"
	"github.com/go-telegram-otp/internal/pkg/ratelimit"
	transporthttp "github.com/go-telegram-otp/internal/transport/http"
	"github.com/go-telegram-otp/internal/transport/http/handler"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	tokenRepo := dynamo.NewLinkTokenRepo(dynamoClient, cfg.DynamoTables.LinkTokens)
	linkRepo := dynamo.NewIdentityLinkRepo(dynamoClient, cfg.DynamoTables.IdentityLinks, cfg.DynamoTables.ChannelIdentities, cfg.DynamoTables.LinkTokens)
	otpRepo := dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPCodes)

	tg, err := telegram.NewChannel(cfg)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}
	if cfg.TelegramBotUsername == "" {
		cfg.TelegramBotUsername = tg.Username()
	}

	limiter, closeLimiter := newLimiter(cfg)
	defer closeLimiter()

	// JWT provider (optional; admin routes stay unmounted without it).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available, admin routes disabled: %v", err)
	}

	tokenSvc := linktoken.NewService(linktoken.Deps{
		Store:        tokenRepo,
		TTL:          cfg.LinkTokenTTL,
		DeepLinkBase: cfg.DeepLinkBase(),
	})
	linkingSvc := linking.NewService(linking.Deps{
		Store:  linkRepo,
		Tokens: tokenSvc,
		Sender: tg,
		OTPs:   otpRepo,
	})
	otpSvc := otp.NewService(otp.Deps{
		Store:       otpRepo,
		Links:       linkRepo,
		Limiter:     limiter,
		Sender:      tg,
		Tokens:      tokenSvc,
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
	})

	deps := &transporthttp.Deps{
		LinkTokens:  tokenSvc,
		Linking:     linkingSvc,
		OTP:         otpSvc,
		BotUsername: cfg.TelegramBotUsername,
		JWTProvider: jwtProvider,
	}

	if cfg.TelegramWebhookURL != "" {
		if err := tg.SetWebhook(cfg.TelegramWebhookURL); err != nil {
			log.Fatalf("telegram: %v", err)
		}
		deps.Webhook = tg
		slog.Info("telegram webhook registered", "url", cfg.TelegramWebhookURL)
	} else {
		if err := tg.DeleteWebhook(); err != nil {
			slog.Warn("could not clear telegram webhook", "err", err)
		}
		go tg.Listen(ctx, handler.Dispatch(linkingSvc))
	}

	router, closeRouter := transporthttp.NewRouter(cfg, deps)
	defer closeRouter()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, bot=@%s)", cfg.AppPort, cfg.AppEnv, cfg.TelegramBotUsername)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped")
}

// newLimiter returns the Redis-backed limiter when REDIS_URL is set and the
// in-process one otherwise.
func newLimiter(cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable at startup, rate limiter fails open until it recovers", "err", err)
		}
		return ratelimit.NewRedisFixedWindow(client, cfg.OTPRateLimit, cfg.OTPRateWindow), func() { _ = client.Close() }
	}
	fw := ratelimit.NewFixedWindow(cfg.OTPRateLimit, cfg.OTPRateWindow, cfg.OTPRateWindow)
	return fw, fw.Close
}
