package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims gateway metadata entries", func(t *testing.T) {
		input := map[string]string{
			" cart_id ":    " cart_123 ",
			"order_number": " ORD-1001 ",
			"note":         " ",
			" ":            "ignored",
			"":             "ignored",
		}

		expected := map[string]string{
			"cart_id":      "cart_123",
			"order_number": "ORD-1001",
			"note":         "",
		}

		actual := NormalizeStringMap(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("collapses empty input to nil", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatal("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{}) != nil {
			t.Fatal("expected nil for empty map")
		}
		if NormalizeStringMap(map[string]string{" ": "x"}) != nil {
			t.Fatal("expected nil when only blank keys remain")
		}
	})
}
