package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upvotelabs/upvote-client/internal/track"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Tokens:     StaticToken("secret"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))

	_, err := client.ListOrders(context.Background())
	require.NoError(t, err)
}

func TestClient_ListOrders(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		w.Write([]byte(`[{"id":"ord_1","status":"pending","cost":4.5},{"id":"ord_2","status":"completed","cost":9}]`))
	}))

	orders, err := client.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "ord_1", orders[0].ID)
	require.Equal(t, "pending", orders[0].Status)
}

func TestClient_OrderStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/ord_1/status", r.URL.Path)
		w.Write([]byte(`{"status":"failed","error_message":"target unavailable"}`))
	}))

	result, err := client.OrderStatus(context.Background(), "ord_1")
	require.NoError(t, err)
	require.Equal(t, track.StatusFailed, result.Status)
	require.Equal(t, "target unavailable", result.ErrorMessage)
}

func TestClient_OrderStatusRejectsUnknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"definitely-new"}`))
	}))

	_, err := client.OrderStatus(context.Background(), "ord_1")
	require.Error(t, err)
}

func TestClient_PaymentStatus(t *testing.T) {
	cases := []struct {
		name string
		body string
		want track.Status
	}{
		{"plain", `{"status":"pending"}`, track.StatusPending},
		{"gateway passthrough", `{"result":{"payment_status":"paid"}}`, track.StatusCompleted},
		{"nested status", `{"result":{"status":"cancel"}}`, track.StatusCancelled},
		{"provider value at top level", `{"status":"system_fail"}`, track.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/payments/pay_1/status", r.URL.Path)
				w.Write([]byte(tc.body))
			}))

			result, err := client.PaymentStatus(context.Background(), "pay_1")
			require.NoError(t, err)
			require.Equal(t, tc.want, result.Status)
		})
	}
}

func TestClient_PaymentStatusRejectsUnknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"mystery"}`))
	}))

	_, err := client.PaymentStatus(context.Background(), "pay_1")
	require.Error(t, err)
}

func TestClient_CancelPayment(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments/pay_1/cancel", r.URL.Path)
		w.Write([]byte(`{"success":true}`))
	}))

	ok, err := client.CancelPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClient_Me(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me", r.URL.Path)
		w.Write([]byte(`{"id":"u1","email":"a@b.c","balance":42.5}`))
	}))

	profile, err := client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42.5, profile.Balance)
}

func TestClient_ErrorStatusSurfacesAsFetchFailure(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", code)
		}))

		_, err := client.OrderStatus(context.Background(), "ord_1")
		require.Error(t, err, "status %d", code)
	}
}
