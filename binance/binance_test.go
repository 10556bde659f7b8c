// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSignature(t *testing.T) {
	// Worked example from the binance api documentation. The digest covers
	// the payload byte-for-byte, without reordering.
	c := New("key", "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j", nil)
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := c.sign(payload); got != want {
		t.Fatalf("signature: got %s, want %s", got, want)
	}
}

func TestGetOrder(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/order" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if len(r.Header.Get("X-MBX-APIKEY")) == 0 {
			t.Errorf("api key header is missing")
		}
		raw := r.URL.RawQuery
		i := strings.LastIndex(raw, "&signature=")
		if i < 0 {
			t.Errorf("signature is not the last parameter: %s", raw)
		} else {
			payload, sig := raw[:i], raw[i+len("&signature="):]
			mac := hmac.New(sha256.New, []byte("secret"))
			io.WriteString(mac, payload)
			if want := hex.EncodeToString(mac.Sum(nil)); sig != want {
				t.Errorf("signature over %q: got %s, want %s", payload, sig, want)
			}
		}
		if len(r.URL.Query().Get("timestamp")) == 0 {
			t.Errorf("request has no timestamp: %s", raw)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":              "BTCUSDT",
			"orderId":             101,
			"clientOrderId":       "abc",
			"status":              "FILLED",
			"executedQty":         "0.5",
			"cummulativeQuoteQty": "55.0",
			"side":                "BUY",
		})
	}))
	defer s.Close()

	c := New("key", "secret", &Options{RestURL: s.URL})
	order, err := c.GetOrder(context.Background(), "BTCUSDT", 101)
	if err != nil {
		t.Fatal(err)
	}
	if order.OrderID != 101 || order.Status != "FILLED" {
		t.Fatalf("unexpected order %+v", order)
	}
	price, ok := order.FillPrice()
	if !ok {
		t.Fatalf("expected a fill price")
	}
	if want := "110"; price.String() != want {
		t.Fatalf("fill price: got %s, want %s", price, want)
	}
}

func TestErrorDecoding(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"code": -2013, "msg": "Order does not exist."})
	}))
	defer s.Close()

	c := New("key", "secret", &Options{RestURL: s.URL})
	_, err := c.GetOrder(context.Background(), "BTCUSDT", 5)
	if err == nil {
		t.Fatalf("expected an error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Code != -2013 {
		t.Fatalf("code: got %d, want -2013", apiErr.Code)
	}
}
