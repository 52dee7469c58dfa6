package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func TestGetStringAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"entity_ref": events.NewStringAttribute("page#abc"),
		"empty":      events.NewStringAttribute(""),
		"unicode":    events.NewStringAttribute("日本語"),
		"ttl":        events.NewNumberAttribute("10"),
	}
	tests := []struct {
		name     string
		image    map[string]events.DynamoDBAttributeValue
		key      string
		expected string
	}{
		{"present", image, "entity_ref", "page#abc"},
		{"empty value", image, "empty", ""},
		{"unicode", image, "unicode", "日本語"},
		{"number attribute", image, "ttl", ""},
		{"missing key", image, "parent_ref", ""},
		{"nil image", nil, "entity_ref", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getStringAttr(tt.image, tt.key); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestGetNumberAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"ttl":      events.NewNumberAttribute("1704067200"),
		"zero":     events.NewNumberAttribute("0"),
		"negative": events.NewNumberAttribute("-5"),
		"min":      events.NewNumberAttribute("-9223372036854775808"),
		"decimal":  events.NewNumberAttribute("1.5"),
		"string":   events.NewStringAttribute("123"),
	}
	tests := []struct {
		name     string
		image    map[string]events.DynamoDBAttributeValue
		key      string
		expected int64
	}{
		{"valid", image, "ttl", 1704067200},
		{"zero", image, "zero", 0},
		{"negative", image, "negative", -5},
		{"min int64", image, "min", -9223372036854775808},
		{"decimal is not a ttl", image, "decimal", 0},
		{"string attribute", image, "string", 0},
		{"missing key", image, "other", 0},
		{"nil image", nil, "ttl", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getNumberAttr(tt.image, tt.key); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestEntityType(t *testing.T) {
	tests := map[string]string{
		"page#123":  "page",
		"block#a#b": "block",
		"page":      "page",
		"":          "",
	}
	for ref, expected := range tests {
		if got := entityType(ref); got != expected {
			t.Errorf("entityType(%q) = %q, expected %q", ref, got, expected)
		}
	}
}

func BenchmarkGetNumberAttr(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"ttl": events.NewNumberAttribute("1704067200"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		getNumberAttr(image, "ttl")
	}
}
