package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/database"
	"jazzcash-gateway/internal/infrastructure/payment"
	"jazzcash-gateway/internal/jazzcash"
	"jazzcash-gateway/internal/lock"
	"jazzcash-gateway/internal/repo"
	"jazzcash-gateway/internal/server"
	"jazzcash-gateway/internal/service"
	"jazzcash-gateway/internal/storefront"
	"jazzcash-gateway/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orders = 20

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	gw := sandboxGateway(cfg.Gateway)

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer dbService.Close() //nolint:errcheck
	db := dbService.DB()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	orderRepo := repo.NewOrderRepo(db)
	noteRepo := repo.NewNoteRepo(db)
	callbackRepo := repo.NewCallbackRepo(db)
	locker := lock.NewLocal()
	events := service.NoopPublisher()

	checkoutService := service.NewCheckoutService(db, orderRepo, jazzcash.NewSigner(gw, time.Now), gw, zl)
	callbackService := service.NewCallbackService(db, orderRepo, noteRepo, callbackRepo, locker,
		storefront.NewURLs(cfg.Store), events, gw, zl)

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.NewHandler(checkoutService, callbackService, dbService, gw, zl), cfg.Store, zap.NewNop())
	processor := payment.NewSandboxProcessor(gw.Password.Reveal(), 50*time.Millisecond)

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", orders)
	var delayed []*payment.Callback
	for i := 0; i < orders; i++ {
		// 1. Create
		order, err := checkoutService.CreateOrder(ctx, decimal.New(int64(500+rand.IntN(5000)), 0))
		if err != nil {
			log.Printf("Create failed: %v", err)
			continue
		}

		// 2. Checkout through the storefront form
		fmt.Printf("[%d] Order %d (PKR %s) ... ", i+1, order.ID, order.Total.StringFixed(2))
		w := post(router, fmt.Sprintf("/orders/%d/jazzcash", order.ID), url.Values{
			"jazzcash_mobile_number": {fmt.Sprintf("03%09d", rand.IntN(1_000_000_000))},
		})
		if w.Code != http.StatusSeeOther {
			fmt.Printf("CHECKOUT REJECTED (%d): %s\n", w.Code, w.Body.String())
			continue
		}

		// 3. Shopper pays on the hosted page
		cb, err := processor.Pay(ctx, w.Header().Get("Location"))
		if err != nil {
			fmt.Printf("PROCESSOR ERROR: %v\n", err)
			continue
		}
		if cb.Delayed {
			fmt.Printf("PAID, callback delayed\n")
			delayed = append(delayed, cb)
			continue
		}

		// 4. Callback, sometimes delivered twice at once
		deliveries := 1
		if rand.IntN(4) == 0 {
			deliveries = 2
		}
		targets := deliver(router, cb, deliveries)
		fmt.Printf("code %s x%d -> %s\n", cb.Fields["pp_ResponseCode"], deliveries, strings.Join(targets, ", "))

		fresh, _ := orderRepo.FindById(ctx, order.ID)
		fmt.Printf("    -> DB Status: %s\n", fresh.PaymentStatus)
		fmt.Println("---------------------------------------------------")
	}

	// A callback for a transaction no order owns.
	fmt.Println("Forged callback ->", strings.Join(deliver(router, &payment.Callback{Fields: map[string]string{
		service.FieldTxnRefNo:     "TXN_0_0",
		service.FieldResponseCode: "000",
	}}, 1), ", "))

	// Let the delayed payments go stale, then reconcile.
	time.Sleep(2 * gw.PendingExpiry)
	reconciler := worker.NewReconciliationWorker(db, orderRepo, noteRepo, callbackRepo, locker, processor, events,
		gw.PendingExpiry, time.Second, zl)
	if err := reconciler.Process(ctx); err != nil {
		log.Printf("Reconciliation failed: %v", err)
	}

	// The worker asked the processor, so late callbacks now agree with the stored state.
	for _, cb := range delayed {
		fmt.Printf("Late callback %s -> %s\n", cb.Fields["pp_TxnRefNo"], strings.Join(deliver(router, cb, 1), ", "))
	}
}

// sandboxGateway forces an enabled sandbox gateway with a short pending expiry.
func sandboxGateway(gw config.Gateway) config.Gateway {
	gw.Enabled = true
	gw.TestMode = true
	if gw.MerchantID == "" {
		gw.MerchantID = "MC_SANDBOX"
	}
	if gw.Password == "" {
		gw.Password = config.Secret("sandbox-integrity-salt")
	}
	gw.PendingExpiry = time.Second
	return gw
}

func post(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func deliver(h http.Handler, cb *payment.Callback, times int) []string {
	form := url.Values{}
	for k, v := range cb.Fields {
		form.Set(k, v)
	}

	targets := make([]string, times)
	var wg sync.WaitGroup
	for i := 0; i < times; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			targets[i] = post(h, "/jazzcash/callback", form).Header().Get("Location")
		}(i)
	}
	wg.Wait()
	return targets
}
