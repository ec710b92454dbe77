package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/seaside-charters/api/internal/services"
)

func newWebhookRouter(finalizer services.FinalizerService) chi.Router {
	router := chi.NewRouter()
	NewPaymentWebhookHandlers(finalizer).Routes(router)
	return router
}

func TestPaymentWebhookForwardsRawPayloadAndSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	var (
		gotPayload   []byte
		gotSignature string
	)
	router := newWebhookRouter(&stubFinalizerService{handleFunc: func(_ context.Context, body []byte, signature string) (services.FinalizeResult, error) {
		gotPayload = body
		gotSignature = signature
		return services.FinalizeResult{EventID: "evt_1", OrderID: "ord-1", BookingID: "bkg_1"}, nil
	}})

	req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Equal(gotPayload, payload) || gotSignature != "t=1,v1=abc" {
		t.Fatalf("expected raw payload and signature, got %q %q", gotPayload, gotSignature)
	}
	var resp webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received || resp.BookingID != "bkg_1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPaymentWebhookAcknowledgesDuplicatesAndIgnoredEvents(t *testing.T) {
	for _, result := range []services.FinalizeResult{
		{EventID: "evt_1", OrderID: "ord-1", Duplicate: true},
		{EventID: "evt_2", EventType: "payment_intent.created", Ignored: true},
	} {
		router := newWebhookRouter(&stubFinalizerService{handleFunc: func(context.Context, []byte, string) (services.FinalizeResult, error) {
			return result, nil
		}})
		req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for %+v, got %d", result, rr.Code)
		}
	}
}

func TestPaymentWebhookMapsErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("%w: bad header", services.ErrInvalidSignature), status: http.StatusBadRequest, code: "invalid_signature"},
		{err: fmt.Errorf("%w: order %q", services.ErrBookingIntentNotFound, "ord-1"), status: http.StatusNotFound, code: "intent_not_found"},
		{err: fmt.Errorf("%w: metadata", services.ErrValidation), status: http.StatusUnprocessableEntity, code: "invalid_event"},
		{err: fmt.Errorf("%w: postgres", services.ErrUnavailable), status: http.StatusServiceUnavailable, code: "webhook_unavailable"},
		{err: fmt.Errorf("%w: order %q", services.ErrIntentCorrupt, "ord-1"), status: http.StatusInternalServerError, code: "intent_corrupt"},
		{err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: "webhook_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			router := newWebhookRouter(&stubFinalizerService{handleFunc: func(context.Context, []byte, string) (services.FinalizeResult, error) {
				return services.FinalizeResult{}, tc.err
			}})
			req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewBufferString(`{}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestPaymentWebhookRejectsOversizedPayload(t *testing.T) {
	called := false
	router := newWebhookRouter(&stubFinalizerService{handleFunc: func(context.Context, []byte, string) (services.FinalizeResult, error) {
		called = true
		return services.FinalizeResult{}, nil
	}})
	req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(make([]byte, maxWebhookBody+1)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if called {
		t.Fatalf("finalizer must not run for oversized payloads")
	}
}
