package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeExtraction(t *testing.T) {
	tests := []struct {
		name    string
		content string
		item    string
		price   float64
		conf    float64
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"item": "Coffee", "price": 120, "currency": "bdt", "confidence": 0.92}`,
			item:    "Coffee",
			price:   120,
			conf:    0.92,
		},
		{
			name:    "markdown fenced",
			content: "```json\n{\"item\": \"Coffee\", \"price\": 120, \"currency\": \"\", \"confidence\": 0.5}\n```",
			item:    "Coffee",
			price:   120,
			conf:    0.5,
		},
		{
			name:    "confidence clamped high",
			content: `{"item": "x", "price": 1, "currency": "", "confidence": 1.7}`,
			item:    "x",
			price:   1,
			conf:    1,
		},
		{
			name:    "confidence clamped low",
			content: `{"item": "x", "price": 1, "currency": "", "confidence": -0.3}`,
			item:    "x",
			price:   1,
			conf:    0,
		},
		{
			name:    "not json",
			content: "I think this is a coffee receipt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeExtraction(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeExtraction(%q) succeeded, want error", tt.content)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeExtraction: %v", err)
			}
			if got.Item != tt.item || got.Price != tt.price || got.Confidence != tt.conf {
				t.Errorf("extraction = %+v", got)
			}
		})
	}
}

func TestDecodeExtractionUppercasesCurrency(t *testing.T) {
	got, err := decodeExtraction(`{"item": "x", "price": 1, "currency": " bdt ", "confidence": 0.9}`)
	if err != nil {
		t.Fatal(err)
	}
	if got.Currency != "BDT" {
		t.Errorf("currency = %q, want BDT", got.Currency)
	}
}

func TestFromText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"item": "Coffee", "price": 120, "currency": "", "confidence": 0.9}`,
				},
			}},
		})
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.FromText(context.Background(), "coffee 120")
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if got.Item != "Coffee" || got.Price != 120 || got.Confidence != 0.9 {
		t.Errorf("extraction = %+v", got)
	}
}

func TestFromImageSendsDataURL(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"item": "x", "price": 1, "currency": "", "confidence": 0.5}`,
				},
			}},
		})
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Write(raw)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.FromImage(context.Background(), "data:image/jpeg;base64,AAAA", "Groceries"); err != nil {
		t.Fatalf("FromImage: %v", err)
	}

	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(captured.Messages))
	}
	// The user message is a content-part array carrying the image URL.
	parts, ok := captured.Messages[1].Content.([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %#v", captured.Messages[1].Content)
	}
	img, ok := parts[1].(map[string]any)
	if !ok {
		t.Fatalf("image part = %#v", parts[1])
	}
	iu, _ := img["image_url"].(map[string]any)
	if iu["url"] != "data:image/jpeg;base64,AAAA" {
		t.Errorf("image url = %v", iu["url"])
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FromText(context.Background(), "coffee 120"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}
