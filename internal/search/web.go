package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/metrics"
)

const (
	// FetchErrorMessage marks a source whose page content could not be
	// extracted; the search snippet is used instead.
	FetchErrorMessage = "No se pudo extraer contenido de esta fuente."

	// NoResultsMessage is returned when the search API finds nothing.
	NoResultsMessage = "No se encontraron resultados de búsqueda externos."

	// SearchErrorMessage is returned when the search API call itself fails.
	SearchErrorMessage = "Hubo un error al realizar la búsqueda externa."

	webContextHeader = "### Contexto de Búsqueda Externa:\n"

	// maxPDFPages bounds PDF extraction to the first pages of a document.
	maxPDFPages = 10

	// maxSourceChars bounds the extracted text per source so a single
	// long page cannot crowd out the rest of the prompt.
	maxSourceChars = 7000

	// maxFetchBytes bounds how much of a fetched page is read.
	maxFetchBytes = 20 << 20

	defaultSearchURL = "https://www.googleapis.com/customsearch/v1"

	fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// WebConfig configures the web search provider.
type WebConfig struct {
	APIKey       string
	EngineID     string
	NumResults   int
	FetchTimeout time.Duration
	Timeout      time.Duration

	// SearchURL overrides the search API endpoint. Empty selects the
	// Google Programmable Search endpoint.
	SearchURL string
}

// WebProvider searches the public web through a Programmable Search Engine
// and extracts readable text from the top results.
type WebProvider struct {
	cfg       WebConfig
	searchURL string
	client    *http.Client
	logger    *logger.Logger
}

// NewWebProvider creates a web search provider.
func NewWebProvider(cfg WebConfig, log *logger.Logger) *WebProvider {
	if cfg.NumResults <= 0 {
		cfg.NumResults = 3
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	searchURL := cfg.SearchURL
	if searchURL == "" {
		searchURL = defaultSearchURL
	}
	return &WebProvider{
		cfg:       cfg,
		searchURL: searchURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    log,
	}
}

// Name identifies the provider.
func (p *WebProvider) Name() string {
	return "busqueda-web"
}

type searchItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

// Search queries the search API, fetches each result page concurrently and
// renders one markdown context block. It never returns an error; any
// failure degrades to a placeholder string.
func (p *WebProvider) Search(ctx context.Context, query string) string {
	start := time.Now()
	text, degraded := p.search(ctx, query)
	metrics.RecordContextSearch(p.Name(), time.Since(start).Seconds(), degraded)
	return text
}

func (p *WebProvider) search(ctx context.Context, query string) (string, bool) {
	params := url.Values{}
	params.Set("key", p.cfg.APIKey)
	params.Set("cx", p.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(p.cfg.NumResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		p.logger.Error("failed to build search request", "error", err)
		return SearchErrorMessage, true
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("search API request failed", "error", err)
		return SearchErrorMessage, true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("search API returned non-OK status", "status", resp.StatusCode)
		return SearchErrorMessage, true
	}

	var results searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		p.logger.Error("failed to decode search response", "error", err)
		return SearchErrorMessage, true
	}

	if len(results.Items) == 0 {
		return NoResultsMessage, false
	}

	// Page fetches are independent; a slow or failing fetch degrades that
	// one source to its snippet without blocking the others.
	contents := make([]string, len(results.Items))
	var wg sync.WaitGroup
	for i, item := range results.Items {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			contents[i] = p.fetchAndParse(ctx, link)
		}(i, item.Link)
	}
	wg.Wait()

	var b strings.Builder
	b.WriteString(webContextHeader)
	for i, item := range results.Items {
		title := item.Title
		if title == "" {
			title = "Sin Título"
		}
		snippet := strings.ReplaceAll(item.Snippet, "\n", " ")
		if snippet == "" {
			snippet = "No hay descripción."
		}

		content := contents[i]
		if content == FetchErrorMessage || content == "" {
			content = snippet
		}

		fmt.Fprintf(&b, "Título: **[%s](%s)**\n", title, item.Link)
		fmt.Fprintf(&b, "Contenido de la Página: %s\n\n", content)
	}
	return b.String(), false
}

// fetchAndParse downloads one result page and extracts readable text. PDFs
// are read up to maxPDFPages; HTML is reduced to its paragraph text. Every
// failure maps to FetchErrorMessage.
func (p *WebProvider) fetchAndParse(ctx context.Context, link string) string {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, link, nil)
	if err != nil {
		return FetchErrorMessage
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("failed to fetch source", "url", link, "error", err)
		return FetchErrorMessage
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("source returned non-OK status", "url", link, "status", resp.StatusCode)
		return FetchErrorMessage
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		p.logger.Warn("failed to read source body", "url", link, "error", err)
		return FetchErrorMessage
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "application/pdf"):
		return extractPDFText(body)
	case strings.Contains(contentType, "text/html"):
		return extractHTMLText(body)
	default:
		p.logger.Warn("unsupported content type", "url", link, "content_type", contentType)
		return FetchErrorMessage
	}
}

func extractPDFText(body []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return FetchErrorMessage
	}

	var b strings.Builder
	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString(" ")
	}

	return truncate(collapseWhitespace(b.String()), maxSourceChars)
}

func extractHTMLText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return FetchErrorMessage
	}

	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			if text := collapseWhitespace(nodeText(n)); text != "" {
				paragraphs = append(paragraphs, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	content := strings.Join(paragraphs, " ")
	if content == "" {
		return FetchErrorMessage
	}
	return truncate(content, maxSourceChars)
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never leaves a partial
	// UTF-8 sequence at the end of the block.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
