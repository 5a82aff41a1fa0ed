package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const listingURL = "https://auto.ria.com/uk/auto_honda_civic_38012345.html"

func TestContactResolver_Resolve(t *testing.T) {
	body := loadFixture(t, "contact_full.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/bff/final-page/public/auto/popUp/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Referer"); got != listingURL {
			t.Errorf("expected Referer %s, got %s", listingURL, got)
		}
		if got := r.Header.Get("Origin"); got != "https://auto.ria.com" {
			t.Errorf("unexpected Origin %s", got)
		}
		if got := r.Header.Get("X-Ria-Source"); got != "vue3" {
			t.Errorf("expected X-Ria-Source vue3, got %s", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected Content-Type %s", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["autoId"] != float64(38012345) || req["type"] != "UsedAuto" ||
			req["langId"] != float64(4) || req["popUpId"] != "autoPhone" {
			t.Errorf("unexpected request body %v", req)
		}

		w.Write(body)
	}))
	defer srv.Close()

	resolver := NewContactResolver(srv.Client(), testSite(srv.URL))
	c := resolver.Resolve(context.Background(), 38012345, listingURL)

	if derefString(c.SellerName) != "Олександр" {
		t.Fatalf("expected trimmed seller name, got %q", derefString(c.SellerName))
	}
	if derefString(c.Phone) != "380501234567" {
		t.Fatalf("expected first call-request phone normalized, got %s", derefString(c.Phone))
	}
}

func TestContactResolver_PhoneStrFallback(t *testing.T) {
	body := loadFixture(t, "contact_fallback.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	resolver := NewContactResolver(srv.Client(), testSite(srv.URL))
	c := resolver.Resolve(context.Background(), 38012345, listingURL)

	if c.SellerName != nil {
		t.Fatalf("expected no seller name, got %s", *c.SellerName)
	}
	if derefString(c.Phone) != "380501234567" {
		t.Fatalf("expected phoneStr fallback 380501234567, got %s", derefString(c.Phone))
	}
}

func TestContactResolver_MalformedSections(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantName  string
		wantPhone string
	}{
		{
			"templates not a list",
			`{"templates":{"a":1},"additionalParams":{"phoneStr":"0501234567"}}`,
			"<nil>", "380501234567",
		},
		{
			"templates is a string",
			`{"templates":"none","additionalParams":{"phoneStr":"(050) 123 45 67"}}`,
			"<nil>", "380501234567",
		},
		{
			"additionalParams not an object",
			`{"templates":[{"id":"autoPhoneMainInfoName","elements":[{"content":"Ігор"}]}],"additionalParams":[1]}`,
			"Ігор", "<nil>",
		},
		{
			"template entry of the wrong shape",
			`{"templates":[7,{"id":"autoPhoneCallRequest","actionData":{"params":{"phone":"0671112233"}}}]}`,
			"<nil>", "380671112233",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resolver := NewContactResolver(srv.Client(), testSite(srv.URL))
			c := resolver.Resolve(context.Background(), 38012345, listingURL)
			if derefString(c.SellerName) != tt.wantName {
				t.Fatalf("expected name %q, got %q", tt.wantName, derefString(c.SellerName))
			}
			if derefString(c.Phone) != tt.wantPhone {
				t.Fatalf("expected phone %q, got %q", tt.wantPhone, derefString(c.Phone))
			}
		})
	}
}

func TestContactResolver_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden", http.StatusForbidden, `{"templates":[]}`},
		{"invalid json", http.StatusOK, `oops`},
		{"no phone anywhere", http.StatusOK, `{"templates":[],"additionalParams":{}}`},
		{"phone without digits", http.StatusOK, `{"additionalParams":{"phoneStr":"hidden"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resolver := NewContactResolver(srv.Client(), testSite(srv.URL))
			c := resolver.Resolve(context.Background(), 38012345, listingURL)
			if c.SellerName != nil || c.Phone != nil {
				t.Fatalf("expected empty contact, got name=%s phone=%s",
					derefString(c.SellerName), derefString(c.Phone))
			}
		})
	}
}
