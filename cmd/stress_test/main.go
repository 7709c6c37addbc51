package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	withdrawals   = 10
)

// Fires concurrent orders and withdrawals at one item of the configured
// database and checks that its stock ends at exactly zero.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	stockService := service.NewStockService(db)
	itemService := service.NewItemService(db, stockService)
	movementService := service.NewMovementService(db)
	orderService := service.NewOrderService(db)

	// Fresh item per run so previous data does not count
	item, err := itemService.Create(ctx, service.ItemInput{
		Name:  "stress-" + uuid.NewString()[:8],
		Price: decimal.NewFromInt(1),
	})
	if err != nil {
		log.Fatalf("failed to create item: %v", err)
	}
	if _, err := movementService.Create(ctx, service.MovementInput{
		ItemID: item.ID, Quantity: initialStock, Kind: domain.MovementTopUp,
	}); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	// Counters
	var successCount, rejectCount, errorCount atomic.Int32
	record := func(err error) {
		switch {
		case err == nil:
			successCount.Add(1)
		case domain.KindOf(err) == domain.KindInsufficientStock:
			rejectCount.Add(1)
		default:
			errorCount.Add(1)
			log.Printf("unexpected error: %v", err)
		}
	}

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			if n < withdrawals {
				_, err := movementService.Create(ctx, service.MovementInput{
					ItemID: item.ID, Quantity: 1, Kind: domain.MovementWithdrawal,
				})
				record(err)
				return
			}
			_, err := orderService.Create(ctx, service.OrderInput{
				ItemID: item.ID, Quantity: 1, Price: decimal.NewFromInt(1),
			})
			record(err)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", cfg.DBDriver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && rejected == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d requests succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, rejected)
	}

	finalStock, err := stockService.RemainingStock(ctx, item.ID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}
