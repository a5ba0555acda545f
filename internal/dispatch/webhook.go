package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CreditNotePayload is the per-client message the invoicing queue consumes.
// The field names are part of the downstream contract and must match
// exactly; do not rename them.
type CreditNotePayload struct {
	Loja             string `json:"LOJA"`
	CNPJ             string `json:"CNPJ"`
	NumeroNF         string `json:"Nº NF"`
	NC               string `json:"NC"`
	GerarNotaCredito bool   `json:"gerar_nota_credito"`
}

// HoursPayload is the per-client descriptive-hours message. As with
// CreditNotePayload, the field names are contractual.
type HoursPayload struct {
	InfoLoja           StoreInfo  `json:"info_loja"`
	ListaAcrescimos    []LineItem `json:"lista_acrescimos"`
	ListaDescontos     []LineItem `json:"lista_descontos"`
	FaturamentoHeaders []string   `json:"faturamento_headers"`
	ItensFaturadosRows [][]string `json:"itens_faturados_rows"`
}

// StoreInfo identifies the client inside an HoursPayload.
type StoreInfo struct {
	Nome       string `json:"nome"`
	CNPJ       string `json:"cnpj"`
	Competence string `json:"competencia"`
	FolderID   string `json:"pasta_id"`
}

// LineItem is one surcharge or discount line inside an HoursPayload.
type LineItem struct {
	Descricao string `json:"descricao"`
	Valor     string `json:"valor"`
}

// QueueClient publishes one JSON payload per client to the downstream
// queue/webhook endpoint and reports plain success or failure.
type QueueClient interface {
	Publish(ctx context.Context, payload any) error
}

// HTTPQueueClient posts payloads to a fixed endpoint. Non-2xx responses are
// errors carrying the status and a truncated response body.
type HTTPQueueClient struct {
	endpoint string
	client   *http.Client
}

func NewHTTPQueueClient(endpoint string) *HTTPQueueClient {
	return &HTTPQueueClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPQueueClient) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("queue responded %d: %s", resp.StatusCode, truncatedBody(resp.Body))
	}
	return nil
}

// truncatedBody keeps error messages bounded; downstream error pages can be
// arbitrarily large.
func truncatedBody(r io.Reader) string {
	const limit = 512
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}

// Notifier is the best-effort notification channel of the legacy export
// path: the webhook is fired with no payload and its outcome never reaches
// the caller — an error here is logged and dropped on purpose, so the
// legacy flow's success does not depend on a decorative downstream hook.
type Notifier struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewNotifier(endpoint string, logger *zap.Logger) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Notify fires the webhook and swallows any failure.
func (n *Notifier) Notify(ctx context.Context) {
	if n.endpoint == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, nil)
	if err != nil {
		n.logger.Warn("legacy webhook request build failed", zap.Error(err))
		return
	}
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("legacy webhook call failed", zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("legacy webhook returned non-success", zap.Int("status", resp.StatusCode))
	}
}
