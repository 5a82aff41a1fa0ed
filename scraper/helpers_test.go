package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"autoria_scraper/config"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

// testSite points both API endpoints at a local test server.
func testSite(baseURL string) *config.SiteConfig {
	site := config.DefaultSite()
	site.Endpoints = map[string]string{
		"detail":  baseURL + "/bff/final-page/public/%d?langId=4&device=desktop-web&ssr=0",
		"contact": baseURL + "/bff/final-page/public/auto/popUp/",
	}
	return site
}

func derefString(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}
