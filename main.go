// Package main library borrowing API.
//
// @title           Library Service API
// @version         1.0
// @description     Library borrowing service (books, borrowings, payments, users).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/callogan/library-service-api/app/echoServer"
	authctrl "github.com/callogan/library-service-api/app/echoServer/controller/auth"
	bookctrl "github.com/callogan/library-service-api/app/echoServer/controller/book"
	borrowctrl "github.com/callogan/library-service-api/app/echoServer/controller/borrowing"
	paymentctrl "github.com/callogan/library-service-api/app/echoServer/controller/payment"
	"github.com/callogan/library-service-api/app/echoServer/validation"
	"github.com/callogan/library-service-api/config"
	bookrepo "github.com/callogan/library-service-api/repository/book"
	borrowrepo "github.com/callogan/library-service-api/repository/borrowing"
	notifyrepo "github.com/callogan/library-service-api/repository/notify"
	payrepo "github.com/callogan/library-service-api/repository/payment"
	striperepo "github.com/callogan/library-service-api/repository/stripe"
	userrepo "github.com/callogan/library-service-api/repository/user"
	authsvc "github.com/callogan/library-service-api/service/auth"
	booksvc "github.com/callogan/library-service-api/service/book"
	borrowsvc "github.com/callogan/library-service-api/service/borrowing"
	"github.com/callogan/library-service-api/service/overdue"
	paymentsvc "github.com/callogan/library-service-api/service/payment"
	"github.com/callogan/library-service-api/util/database"
	"github.com/callogan/library-service-api/workers"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	bwr := borrowrepo.New(db)
	pr := payrepo.New(db)
	sr := striperepo.NewHTTP(cfg.StripeAPIKey)

	var notifier notifyrepo.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifier = notifyrepo.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	} else {
		log.Warn("telegram not configured, notifications go to the log")
		notifier = &notifyrepo.LogNotifier{Log: log}
	}

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(br)
	pms := paymentsvc.New(pr, bwr, sr, notifier, log,
		cfg.PaymentSuccessURL, cfg.PaymentCancelURL, cfg.SessionTTL)
	bws := borrowsvc.New(db, bwr, br, pr, pms, notifier, log)
	ons := overdue.New(bwr, notifier, log)

	// periodic jobs
	sched := workers.New(cfg.ScanInterval, log,
		workers.Job{Name: "expire stale payments", Run: func(ctx context.Context) error {
			_, err := pms.ExpireStale(ctx, time.Now().UTC())
			return err
		}},
		workers.Job{Name: "overdue scan", Run: func(ctx context.Context) error {
			_, err := ons.ScanAndNotify(ctx, time.Now().UTC())
			return err
		}},
	)
	sched.Start(ctx)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowC := &borrowctrl.Controller{
		Svc: bws, V: v, Log: log,
		Sched: sched,
		OverdueCheck: func(ctx context.Context) error {
			_, err := ons.ScanAndNotify(ctx, time.Now().UTC())
			return err
		},
	}
	paymentC := &paymentctrl.Controller{Svc: pms, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowC,
		Payment:   paymentC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	log.Info("starting server", "port", port, "env", cfg.Env)

	e.Logger.Fatal(e.Start(":" + port))
}
