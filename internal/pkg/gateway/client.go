package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gofiber/fiber/v2/log"

	"github.com/reinfweb/ReinfWeb/internal/pkg/env"
)

// Endpoint URL pairs of the government reception and query services.
const (
	productionSubmitURL = "https://reinf.receita.economia.gov.br/recepcao/lotes"
	productionQueryURL  = "https://reinf.receita.economia.gov.br/consulta/lotes/%s"
	stagingSubmitURL    = "https://pre-reinf.receita.economia.gov.br/recepcao/lotes"
	stagingQueryURL     = "https://pre-reinf.receita.economia.gov.br/consulta/lotes/%s"
)

const requestTimeout = 30 * time.Second

// Response is the transport-level outcome of one gateway call.
type Response struct {
	StatusCode int
	Body       string
}

// Client talks to the REINF reception gateway over mutual TLS.
type Client interface {
	// SubmitLot posts one rendered lot document to the reception endpoint.
	SubmitLot(ctx context.Context, lotXML string) (*Response, error)
	// QueryProtocol fetches the processing status of a submitted lot.
	QueryProtocol(ctx context.Context, protocol string) (*Response, error)
}

// HTTPClient is the production Client, authenticated with the contributor's
// e-CNPJ client certificate.
type HTTPClient struct {
	httpClient *http.Client
	submitURL  string
	queryURL   string
}

// NewHTTPClient builds a gateway client from a PEM client-certificate bundle.
// PKCS#12 containers are not accepted here: convert the .pfx to PEM first and
// point CERTIFICATE_PEM_PATH at the result.
func NewHTTPClient(certPEMPath string) (*HTTPClient, error) {
	if !strings.HasSuffix(certPEMPath, ".pem") {
		return nil, fmt.Errorf("gateway requires a PEM certificate bundle, got %s (convert the pfx to pem first)", certPEMPath)
	}
	cert, err := tls.LoadX509KeyPair(certPEMPath, certPEMPath)
	if err != nil {
		return nil, fmt.Errorf("load client certificate %s: %w", certPEMPath, err)
	}

	submitURL, queryURL := stagingSubmitURL, stagingQueryURL
	if env.IsProduction() {
		submitURL, queryURL = productionSubmitURL, productionQueryURL
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
			},
		},
		submitURL: submitURL,
		queryURL:  queryURL,
	}, nil
}

// NewHTTPClientFromEnv builds the client from CERTIFICATE_PEM_PATH.
func NewHTTPClientFromEnv() (*HTTPClient, error) {
	return NewHTTPClient(env.GetEnv("CERTIFICATE_PEM_PATH", ""))
}

func (c *HTTPClient) SubmitLot(ctx context.Context, lotXML string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, strings.NewReader(lotXML))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	log.Infof("submitting lot to %s", c.submitURL)
	return c.do(req)
}

func (c *HTTPClient) QueryProtocol(ctx context.Context, protocol string) (*Response, error) {
	if protocol == "" {
		return nil, fmt.Errorf("empty protocol number")
	}
	url := fmt.Sprintf(c.queryURL, protocol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Infof("querying lot status at %s", url)
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// protocolJSONKeys and protocolXMLTags are the key spellings the gateway has
// been observed to use across versions, tried in order.
var (
	protocolJSONKeys = []string{"numeroProtocolo", "protocolo"}
	protocolXMLTags  = []string{"numeroProtocolo", "protocolo", "nrProtocolo", "protocoloEnvio"}
)

// ExtractProtocol pulls the lot protocol number out of a reception response
// body. JSON bodies are tried first, then XML tag probing. Returns "" when no
// protocol can be found.
func ExtractProtocol(body string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		for _, key := range protocolJSONKeys {
			if v, ok := payload[key].(string); ok && v != "" {
				return v
			}
		}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err == nil && doc.Root() != nil {
		for _, tag := range protocolXMLTags {
			if el := doc.FindElement("//" + tag); el != nil {
				if v := strings.TrimSpace(el.Text()); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// statusKeys are the situation spellings the query service answers with: the
// envelope key, a bare status and the short situacao variant.
var statusKeys = []string{"situacaoProcessamentoLote", "status", "situacao"}

// ExtractStatus pulls the processing-situation descriptor out of a query
// response body. Each key may hold the descriptor directly or wrap it in an
// object with a descricao field.
func ExtractStatus(body string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		for _, key := range statusKeys {
			if v := statusFromValue(payload[key]); v != "" {
				return v
			}
		}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err == nil && doc.Root() != nil {
		for _, tag := range statusKeys {
			if el := doc.FindElement("//" + tag); el != nil {
				if v := strings.TrimSpace(el.Text()); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func statusFromValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		if d, ok := s["descricao"].(string); ok {
			return d
		}
	}
	return ""
}
