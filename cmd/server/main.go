package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/food-market/internal/app"
	"github.com/linemk/food-market/internal/app/handlers"
	"github.com/linemk/food-market/internal/config"
	"github.com/linemk/food-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/food-market/internal/lib/logger"
	"github.com/linemk/food-market/internal/lib/logger/handlers/urllog"
	"github.com/linemk/food-market/internal/service"
	"github.com/linemk/food-market/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	storeRepo := storage.NewStoreRepository(application.DB)
	menuRepo := storage.NewMenuRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	paymentRepo := storage.NewPaymentRepository(application.DB)
	couponRepo := storage.NewCouponRepository(application.DB)
	userCouponRepo := storage.NewUserCouponRepository(application.DB)

	authService := service.NewAuthService(application.Logger, userRepo, time.Duration(application.Config.JWT.TokenTTL)*time.Minute)
	orderService := service.NewOrderService(application.Logger, application.DB, orderRepo, storeRepo, menuRepo)
	paymentService := service.NewPaymentService(application.Logger, application.DB, paymentRepo, orderRepo, couponRepo, userCouponRepo)
	couponService := service.NewCouponService(application.Logger, application.DB, couponRepo, userCouponRepo, storeRepo)

	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(application.Logger, authService))

	router.Group(func(r chi.Router) {
		jwtMW := jwtmiddleware.NewJWTMiddleware()
		r.Use(jwtMW)

		// жизненный цикл заказа
		r.Post("/api/orders", handlers.CreateOrderHandler(application.Logger, orderService))
		r.Get("/api/orders", handlers.ListOrdersHandler(application.Logger, orderService))
		r.Get("/api/orders/{id}", handlers.GetOrderHandler(application.Logger, orderService))
		r.Post("/api/orders/{id}/advance", handlers.AdvanceOrderStatusHandler(application.Logger, orderService))
		r.Patch("/api/orders/{id}/status", handlers.SetOrderStatusHandler(application.Logger, orderService))
		r.Delete("/api/orders/{id}", handlers.CancelOrderHandler(application.Logger, orderService))

		// платежи и сверка статусов
		r.Post("/api/payments", handlers.RequestPaymentHandler(application.Logger, paymentService))
		r.Get("/api/payments/{id}", handlers.GetPaymentHandler(application.Logger, paymentService))
		r.Patch("/api/payments/{id}/status", handlers.SetPaymentStatusHandler(application.Logger, paymentService))

		// купоны: шаблоны, выдача, погашение
		r.Post("/api/coupons", handlers.CreateCouponHandler(application.Logger, couponService))
		r.Get("/api/coupons/{id}", handlers.GetCouponHandler(application.Logger, couponService))
		r.Patch("/api/coupons/{id}", handlers.UpdateCouponHandler(application.Logger, couponService))
		r.Delete("/api/coupons/{id}", handlers.DeleteCouponHandler(application.Logger, couponService))
		r.Post("/api/coupons/{id}/issue", handlers.IssueUserCouponHandler(application.Logger, couponService))
		r.Post("/api/user-coupons/{id}/redeem", handlers.RedeemUserCouponHandler(application.Logger, couponService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
