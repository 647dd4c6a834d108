// Command mocktarget serves a minimal e-commerce API for exercising
// stampede locally. Every write endpoint answers with generated IDs so
// session captures have something to extract.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

var (
	nextUserID  atomic.Int64
	nextOrderID atomic.Int64
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	latency := flag.Duration("latency", 10*time.Millisecond, "added response latency")
	errorRate := flag.Float64("error-rate", 0, "fraction of requests answered with 500")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusOK, map[string]any{"userId": nextUserID.Add(1)})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"userId": 1}, {"userId": 2}})
	})
	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"userId": 1, "firstName": "Test"})
	})

	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"productId": 1, "productTitle": "Widget"}})
	})
	mux.HandleFunc("/api/products/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"productId": 1, "productTitle": "Widget"})
	})

	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusOK, map[string]any{"orderId": nextOrderID.Add(1)})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{})
	})
	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"orderId": 1})
	})

	mux.HandleFunc("/api/favourites", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, map[string]any{"status": "added"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{})
	})

	mux.HandleFunc("/api/payments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, map[string]any{"paymentId": 1, "isPayed": true})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "healthy")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := withChaos(mux, *latency, *errorRate)

	server := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("mock target listening on %s (latency=%v, error-rate=%.0f%%)", *addr, *latency, *errorRate*100)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func withChaos(next http.Handler, latency time.Duration, errorRate float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		if errorRate > 0 && rand.Float64() < errorRate {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
