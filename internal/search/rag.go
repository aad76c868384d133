package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/metrics"
)

const (
	ragContextHeader = "### Contexto de Documentos Internos (RAG):\n"

	// RAGTimeoutMessage replaces context when the retrieval service is too
	// slow to answer.
	RAGTimeoutMessage = "El servicio de búsqueda de documentos internos tardó demasiado en responder y no está disponible en este momento."

	// RAGConnectionMessage replaces context on network failure.
	RAGConnectionMessage = "Error de conexión al buscar en los documentos internos."

	// RAGDecodeMessage replaces context when the response cannot be parsed.
	RAGDecodeMessage = "Error al procesar la búsqueda en los documentos internos."

	// unknownAuthor marks documents whose author metadata is a filler
	// value and must be omitted from citations.
	unknownAuthor = "Autor Desconocido"

	genericDocumentTitle = "Documento Interno"
)

// RAGConfig configures the internal document provider. ConnectTimeout
// bounds dialing alone; Timeout covers the whole request.
type RAGConfig struct {
	URL            string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// RAGProvider queries the internal document retrieval service and renders
// the pre-ranked results as citation lines with quoted excerpts.
type RAGProvider struct {
	cfg    RAGConfig
	client *http.Client
	logger *logger.Logger
}

// NewRAGProvider creates an internal document provider.
func NewRAGProvider(cfg RAGConfig, log *logger.Logger) *RAGProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}
	return &RAGProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: log,
	}
}

// Name identifies the provider.
func (p *RAGProvider) Name() string {
	return "documentos-internos"
}

type ragDocument struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

type ragResponse struct {
	Results []ragDocument `json:"results"`
}

// Search performs one retrieval call. It never returns an error; timeouts,
// network failures and malformed responses degrade to tagged placeholder
// paragraphs so generation proceeds with impoverished context.
func (p *RAGProvider) Search(ctx context.Context, query string) string {
	start := time.Now()
	text, degraded := p.search(ctx, query)
	metrics.RecordContextSearch(p.Name(), time.Since(start).Seconds(), degraded)
	return text
}

func (p *RAGProvider) search(ctx context.Context, query string) (string, bool) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return placeholder(RAGDecodeMessage), true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		p.logger.Error("failed to build retrieval request", "error", err)
		return placeholder(RAGConnectionMessage), true
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			p.logger.Error("retrieval service timed out", "url", p.cfg.URL, "error", err)
			return placeholder(RAGTimeoutMessage), true
		}
		p.logger.Error("retrieval service request failed", "url", p.cfg.URL, "error", err)
		return placeholder(RAGConnectionMessage), true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("retrieval service returned non-OK status", "status", resp.StatusCode)
		return placeholder(RAGConnectionMessage), true
	}

	var data ragResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		p.logger.Error("failed to decode retrieval response", "error", err)
		return placeholder(RAGDecodeMessage), true
	}

	if len(data.Results) == 0 {
		// Nothing to add; keep the prompt free of filler text.
		return "", false
	}

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(ragContextHeader)
	for _, doc := range data.Results {
		title := doc.Title
		if title == "" {
			title = doc.Source
		}
		if title == "" {
			title = genericDocumentTitle
		}

		citation := fmt.Sprintf("**Fuente:** **%s**", title)
		if doc.Author != "" && doc.Author != unknownAuthor {
			citation += ", " + doc.Author
		}

		content := collapseWhitespace(doc.Content)
		fmt.Fprintf(&b, "%s\n**Texto:**\n> %s\n\n", citation, content)
	}
	return b.String(), false
}

func placeholder(message string) string {
	return "\n\n" + ragContextHeader + message + "\n"
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
