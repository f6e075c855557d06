package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/app"
	"github.com/rl1809/order-fulfillment/internal/config"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

func main() {
	productID := flag.Int64("product", 9999, "product sold in the sale")
	initialStock := flag.Int("stock", 20, "units on sale")
	totalRequests := flag.Int("buyers", 50, "concurrent buyers, one unit each")
	jitter := flag.Duration("jitter", 100*time.Millisecond, "random spread added to each retry delay")
	flag.Parse()

	ctx := context.Background()

	cfg := config.MustLoad()
	cfg.Catalog = nil
	cfg.Retry.Jitter = *jitter

	application, err := app.New(ctx, cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer application.Close()

	// Reset the sale product
	err = application.Store.SaveProduct(ctx, &domain.Product{
		ID:       *productID,
		Name:     "Black Friday Deal",
		Category: "stress-test",
		Price:    decimal.NewFromInt(9900),
		Stock:    *initialStock,
	})
	if err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	sessions := make([]string, *totalRequests)
	for i := range sessions {
		sessions[i] = uuid.NewString()
		if _, err := application.Cart.AddToCart(ctx, sessions[i], *productID, 1); err != nil {
			log.Fatalf("failed to fill cart: %v", err)
		}
	}

	// Counters
	var successCount, soldOutCount, exhaustedCount, errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	startGate := make(chan struct{})
	start := time.Now()

	for i, session := range sessions {
		wg.Add(1)
		go func(buyer int, session string) {
			defer wg.Done()
			<-startGate

			customer := domain.CustomerInfo{
				Name:    fmt.Sprintf("buyer-%d", buyer),
				Email:   fmt.Sprintf("buyer-%d@stress.test", buyer),
				Address: "stress test",
			}
			_, err := application.Orders.CreateOrder(ctx, session, customer)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			case errors.Is(err, domain.ErrConcurrencyExhausted):
				exhaustedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("buyer %d: %v", buyer, err)
			}
		}(i, session)
	}

	close(startGate)
	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	failed := soldOutCount.Load() + exhaustedCount.Load() + errorCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.Store.Driver)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Retries Exhausted:%d\n", exhaustedCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expectedSuccess := int32(min(*initialStock, *totalRequests))
	if success == expectedSuccess && failed == int32(*totalRequests)-expectedSuccess {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", success, failed)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			expectedSuccess, int32(*totalRequests)-expectedSuccess, success, failed)
	}

	inv, err := application.Store.GetInventory(ctx, *productID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", inv.Stock)

	if sold := *initialStock - inv.Stock; sold == int(success) {
		fmt.Printf("PASS: Units sold (%d) match successful orders\n", sold)
	} else {
		fmt.Printf("FAIL: %d units left the stock for %d orders\n", sold, success)
	}
}
