package scraper

/*
Contact pop-up endpoint
=======================
POST /bff/final-page/public/auto/popUp/
{"autoId": 38012345, "type": "UsedAuto", "langId": 4, "popUpId": "autoPhone"}

The endpoint checks Referer against the listing page. The response is a list
of UI template blocks:

{
  "templates": [
    {"id": "autoPhoneMainInfoName", "elements": [{"content": " Олександр "}]},
    {"id": "autoPhoneCallRequest", "actionData": {"params": {"phone": "0501234567"}}}
  ],
  "additionalParams": {"phoneStr": "(050) 123 45 67"}
}
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"autoria_scraper/config"
	"autoria_scraper/identity"
)

const (
	templateSellerName  = "autoPhoneMainInfoName"
	templateCallRequest = "autoPhoneCallRequest"
)

// Contact is the seller name and canonical phone revealed for a listing.
type Contact struct {
	SellerName *string
	Phone      *string
}

type ContactResolver struct {
	client *http.Client
	site   *config.SiteConfig
}

func NewContactResolver(client *http.Client, site *config.SiteConfig) *ContactResolver {
	return &ContactResolver{client: client, site: site}
}

type popUpRequest struct {
	AutoID  int64  `json:"autoId"`
	Type    string `json:"type"`
	LangID  int    `json:"langId"`
	PopUpID string `json:"popUpId"`
}

// popUpResponse keeps both sections raw so a malformed one does not hide
// the other.
type popUpResponse struct {
	Templates        json.RawMessage `json:"templates"`
	AdditionalParams json.RawMessage `json:"additionalParams"`
}

func (p *popUpResponse) templates() []json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(p.Templates, &list); err != nil {
		return nil
	}
	return list
}

func (p *popUpResponse) phoneStr() any {
	var params struct {
		PhoneStr any `json:"phoneStr"`
	}
	if err := json.Unmarshal(p.AdditionalParams, &params); err != nil {
		return nil
	}
	return params.PhoneStr
}

type popUpTemplate struct {
	ID       string `json:"id"`
	Elements []struct {
		Content any `json:"content"`
	} `json:"elements"`
	ActionData struct {
		Params struct {
			Phone any `json:"phone"`
		} `json:"params"`
	} `json:"actionData"`
}

// Resolve asks the contact pop-up endpoint for the seller of autoID.
// referer must be the listing page URL. Any failure yields an empty Contact.
func (r *ContactResolver) Resolve(ctx context.Context, autoID int64, referer string) Contact {
	resp, err := r.fetch(ctx, autoID, referer)
	if err != nil {
		log.Printf("Contact %d: %v", autoID, err)
		return Contact{}
	}
	return parseContact(resp)
}

func (r *ContactResolver) fetch(ctx context.Context, autoID int64, referer string) (*popUpResponse, error) {
	body, err := json.Marshal(popUpRequest{
		AutoID:  autoID,
		Type:    "UsedAuto",
		LangID:  r.site.LangID,
		PopUpID: "autoPhone",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.site.Endpoint("contact"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", r.site.Origin)
	req.Header.Set("Referer", referer)
	req.Header.Set("User-Agent", r.site.UserAgent)
	req.Header.Set("X-Ria-Source", "vue3")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var result popUpResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &result, nil
}

func parseContact(resp *popUpResponse) Contact {
	var c Contact

	for _, raw := range resp.templates() {
		var tmpl popUpTemplate
		if err := json.Unmarshal(raw, &tmpl); err != nil {
			continue
		}

		switch tmpl.ID {
		case templateSellerName:
			if c.SellerName != nil || len(tmpl.Elements) == 0 {
				continue
			}
			if content, ok := scalarString(tmpl.Elements[0].Content); ok {
				if name := strings.TrimSpace(content); name != "" {
					c.SellerName = &name
				}
			}
		case templateCallRequest:
			if c.Phone == nil {
				c.Phone = normalizedPhone(tmpl.ActionData.Params.Phone)
			}
		}
	}

	if c.Phone == nil {
		c.Phone = normalizedPhone(resp.phoneStr())
	}

	return c
}

func normalizedPhone(v any) *string {
	raw, ok := scalarString(v)
	if !ok {
		return nil
	}
	phone, ok := identity.NormalizePhone(raw)
	if !ok {
		return nil
	}
	return &phone
}
