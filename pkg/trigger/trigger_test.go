package trigger

import (
	"strings"
	"testing"
)

func TestResolveParams(t *testing.T) {
	payload := map[string]string{
		"customer_name": "Ada",
		"order_number":  "42",
		"pickup_time":   "18:30",
	}

	t.Run("ordered mapping", func(t *testing.T) {
		params, err := resolveParams([]string{"customer_name", "order_number"}, payload)
		if err != nil {
			t.Fatalf("resolveParams() error = %v", err)
		}
		if len(params) != 2 || params[0] != "Ada" || params[1] != "42" {
			t.Errorf("params = %v", params)
		}
	})

	t.Run("empty mapping", func(t *testing.T) {
		params, err := resolveParams(nil, payload)
		if err != nil {
			t.Fatalf("resolveParams() error = %v", err)
		}
		if len(params) != 0 {
			t.Errorf("params = %v, want empty", params)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := resolveParams([]string{"customer_name", "delivery_eta"}, payload)
		if err == nil {
			t.Fatal("resolveParams() error = nil, want missing-key error")
		}
		if !strings.Contains(err.Error(), "delivery_eta") {
			t.Errorf("error %q does not name the missing key", err)
		}
	})

	t.Run("same key twice", func(t *testing.T) {
		params, err := resolveParams([]string{"order_number", "order_number"}, payload)
		if err != nil {
			t.Fatalf("resolveParams() error = %v", err)
		}
		if params[0] != "42" || params[1] != "42" {
			t.Errorf("params = %v", params)
		}
	})
}
