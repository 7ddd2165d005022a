package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		// Free and cheap endpoints
		{"Service index", "GET", "/", 0},
		{"Health endpoint", "GET", "/health", 5},
		{"Metrics endpoint", "GET", "/metrics", 5},

		// Session issuance is deliberately pricey
		{"Pin exchange", "POST", "/auth/pin", 50},

		// Expensive endpoints
		{"Report download", "GET", "/reports/highlights?start=2025-01-01&end=2025-12-31", 300},
		{"AI completion", "POST", "/ai/complete", 300},
		{"AI quiz", "POST", "/ai/quiz", 300},

		// Day record reads
		{"Day read", "GET", "/highlights/2025-03-10", 20},
		{"Range read", "GET", "/highlights?start=2025-03-01&end=2025-03-31", 20},
		{"Drug search", "GET", "/highlights/search/aspirin", 20},
		{"Duplicate probe", "GET", "/duplicates/aspirin", 20},

		// Day record mutations write through to storage
		{"Day save", "PUT", "/highlights/2025-03-10", 50},
		{"Day delete", "DELETE", "/highlights/2025-03-10", 50},

		// Default case
		{"Unknown endpoint", "GET", "/unknown", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			cost := getTokenCost(req)

			if cost != tt.expectedCost {
				t.Errorf("Expected cost %d for %s %s, got %d",
					tt.expectedCost, tt.method, tt.path, cost)
			}
		})
	}
}

func TestRateLimiterGetBucket(t *testing.T) {
	rl := NewRateLimiter()

	first := rl.getBucket("198.51.100.1")
	second := rl.getBucket("198.51.100.1")
	other := rl.getBucket("198.51.100.2")

	if first != second {
		t.Error("Same client should reuse its bucket")
	}

	if first == other {
		t.Error("Different clients should get different buckets")
	}
}

func TestRateLimitHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitHandler(next)

	t.Run("request within budget", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "198.51.100.10:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}

		if rr.Header().Get("X-RateLimit-Limit") != "1000" {
			t.Errorf("Expected X-RateLimit-Limit 1000, got %q", rr.Header().Get("X-RateLimit-Limit"))
		}

		if rr.Header().Get("X-RateLimit-Rate") != "3" {
			t.Errorf("Expected X-RateLimit-Rate 3, got %q", rr.Header().Get("X-RateLimit-Rate"))
		}

		if rr.Header().Get("X-RateLimit-Remaining") == "" {
			t.Error("Expected X-RateLimit-Remaining to be set")
		}
	})

	t.Run("budget exhaustion returns 429", func(t *testing.T) {
		// Report downloads cost 300 tokens, so a fresh 1000 token
		// bucket allows three before running dry
		var lastCode int
		for i := 0; i < 4; i++ {
			req := httptest.NewRequest("GET", "/reports/highlights?start=2025-01-01&end=2025-12-31", nil)
			req.RemoteAddr = "198.51.100.11:5000"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			lastCode = rr.Code

			if i < 3 && rr.Code != http.StatusOK {
				t.Fatalf("Request %d should pass, got %d", i+1, rr.Code)
			}

			if i == 3 {
				if rr.Header().Get("X-RateLimit-Remaining") != "0" {
					t.Errorf("Expected remaining 0 when limited, got %q", rr.Header().Get("X-RateLimit-Remaining"))
				}
				if rr.Header().Get("Retry-After") != "60" {
					t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
				}
			}
		}

		if lastCode != http.StatusTooManyRequests {
			t.Errorf("Expected status 429 once the bucket drained, got %d", lastCode)
		}
	})

	t.Run("free endpoints never drain the bucket", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "198.51.100.12:5000"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("Request %d to free endpoint should pass, got %d", i+1, rr.Code)
			}
		}
	})
}
