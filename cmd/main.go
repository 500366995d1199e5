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
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/clock"
	"github.com/jaypawar90171/LMS-sub001/internal/config"
	"github.com/jaypawar90171/LMS-sub001/internal/handlers"
	"github.com/jaypawar90171/LMS-sub001/internal/repositories"
	"github.com/jaypawar90171/LMS-sub001/internal/scheduler"
	"github.com/jaypawar90171/LMS-sub001/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	clk := clock.NewSystem()
	notifier := services.NewLogNotifier()

	userRepo := repositories.NewUserRepository(db)
	itemRepo := repositories.NewItemRepository(db)
	copyRepo := repositories.NewCopyRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	queueRepo := repositories.NewQueueRepository(db)
	fineRepo := repositories.NewFineRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	renewalRepo := repositories.NewRenewalRepository(db)

	ledger := services.NewCopyLedger(db, itemRepo, copyRepo)
	fineService := services.NewFineService(db, cfg, clk, userRepo, itemRepo, loanRepo, fineRepo, paymentRepo, notifier)
	circulation := services.NewCirculationService(db, cfg, clk, userRepo, itemRepo, copyRepo, loanRepo, queueRepo, renewalRepo, ledger, fineService, notifier)
	waitlist := services.NewWaitlistService(db, clk, userRepo, itemRepo, loanRepo, queueRepo, circulation)
	catalog := services.NewCatalogService(db, cfg, clk, itemRepo, copyRepo)

	sched := scheduler.New()
	sched.Add("overdue-sweep", cfg.OverdueSweepInterval, func(ctx context.Context) error {
		_, err := fineService.RunOverdueSweep(ctx)
		return err
	})
	sched.Add("reminder-sweep", cfg.ReminderSweepInterval, func(ctx context.Context) error {
		_, err := fineService.RunReminderSweep(ctx)
		return err
	})
	sched.Start()
	defer sched.Stop()

	router := gin.Default()
	handlers.RegisterRoutes(router, catalog, ledger, circulation, waitlist, fineService)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
}
