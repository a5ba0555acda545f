package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"billing-console/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Destination selects the outbound payload shape for a dispatch.
type Destination string

const (
	DestinationInvoice Destination = "invoice" // credit-note payloads to the invoicing queue
	DestinationHours   Destination = "hours"   // descriptive-hours payloads
	DestinationLegacy  Destination = "legacy"  // flat spreadsheet + payload-less webhook
)

// FolderCache is the slice of the lote store the dispatcher needs: persist
// the created master folder id so a re-triggered dispatch finds it instead
// of creating a sibling.
type FolderCache interface {
	SetDriveFolder(ctx context.Context, loteID int, folderID string) error
}

// Options tunes the fan-out. The defaults encode the downstream API's rate
// sensitivity and the storage service's eventual-consistency lag; tests
// shrink the delays.
type Options struct {
	RootFolderID string
	// Legacy flat-sheet target.
	SpreadsheetID string
	SheetRange    string

	ChunkSize    int           // requests in flight per chunk
	ChunkPause   time.Duration // pause between chunks
	FolderDelay  time.Duration // wait after folder creation before first chunk
}

// DefaultOptions returns the production fan-out tuning.
func DefaultOptions(rootFolderID, spreadsheetID, sheetRange string) Options {
	return Options{
		RootFolderID:  rootFolderID,
		SpreadsheetID: spreadsheetID,
		SheetRange:    sheetRange,
		ChunkSize:     10,
		ChunkPause:    2 * time.Second,
		FolderDelay:   5 * time.Second,
	}
}

// Input is everything one dispatch call consumes, already fetched by the
// caller. Records may be empty: the dispatcher then consolidates locally
// from Rows as a fallback for lotes not yet persisted.
type Input struct {
	Lote             *core.Lote
	Records          []core.ConsolidatedRecord
	Rows             []core.UsageRow
	Adjustments      []core.Adjustment
	Clients          map[int]*core.Client
	MultiStoreCycles map[int]bool
	// InvoiceNumbers maps client id to the NF number extracted from the
	// uploaded fiscal document filename, when one exists.
	InvoiceNumbers map[int]string
}

// Dispatcher fans consolidated records out to the downstream systems, one
// request per client so partial failures stay attributable.
type Dispatcher struct {
	folders      FolderStore
	invoiceQueue QueueClient
	hoursQueue   QueueClient
	sheets       SheetWriter
	notifier     *Notifier
	cache        FolderCache
	logger       *zap.Logger
	opts         Options
}

func NewDispatcher(folders FolderStore, invoiceQueue, hoursQueue QueueClient, sheets SheetWriter,
	notifier *Notifier, cache FolderCache, logger *zap.Logger, opts Options) *Dispatcher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 10
	}
	return &Dispatcher{
		folders:      folders,
		invoiceQueue: invoiceQueue,
		hoursQueue:   hoursQueue,
		sheets:       sheets,
		notifier:     notifier,
		cache:        cache,
		logger:       logger,
		opts:         opts,
	}
}

// Dispatch runs one full fan-out for the lote. Any failed request aborts the
// remaining chunks and surfaces one aggregated error; nothing is retried
// automatically. Re-triggering is safe: the master folder is cached on the
// lote and the downstream treats duplicate client/period submissions as
// overwrites.
func (d *Dispatcher) Dispatch(ctx context.Context, dest Destination, in Input) error {
	records := in.Records
	if len(records) == 0 {
		// Fallback: simulate the consolidation locally when nothing has been
		// persisted yet.
		records, _ = core.Consolidate(in.Lote.ID, core.ConsolidateInput{
			Rows:             in.Rows,
			Adjustments:      in.Adjustments,
			Clients:          in.Clients,
			MultiStoreCycles: in.MultiStoreCycles,
		})
	}
	if len(records) == 0 {
		return fmt.Errorf("lote %d has nothing to dispatch", in.Lote.ID)
	}

	if dest == DestinationLegacy {
		return d.dispatchLegacy(ctx, in, records)
	}

	folderID, created, err := d.ensureFolder(ctx, in.Lote)
	if err != nil {
		return err
	}
	if created && d.opts.FolderDelay > 0 {
		// The storage service is eventually consistent; give the fresh
		// folder time to become visible downstream before referencing it.
		time.Sleep(d.opts.FolderDelay)
	}

	queue := d.invoiceQueue
	if dest == DestinationHours {
		queue = d.hoursQueue
	}

	payloads := make([]clientPayload, 0, len(records))
	children := newChildCache(in.Clients, in.MultiStoreCycles)
	for _, r := range records {
		c := in.Clients[r.ClientID]
		if c == nil {
			continue
		}
		var payload any
		switch dest {
		case DestinationInvoice:
			payload = creditNotePayload(r, c, in.InvoiceNumbers[c.ID])
		case DestinationHours:
			payload = hoursPayload(r, c, in, folderID, children)
		default:
			return fmt.Errorf("unknown dispatch destination %q", dest)
		}
		payloads = append(payloads, clientPayload{clientID: c.ID, name: c.LegalName, body: payload})
	}

	return d.fanOut(ctx, in.Lote.ID, dest, queue, payloads)
}

type clientPayload struct {
	clientID int
	name     string
	body     any
}

// fanOut publishes payloads in fixed-size chunks. Requests inside a chunk
// run concurrently with no ordering guarantee; chunk order is preserved and
// a failed chunk stops everything after it.
func (d *Dispatcher) fanOut(ctx context.Context, loteID int, dest Destination, queue QueueClient, payloads []clientPayload) error {
	dispatchID := uuid.NewString()
	d.logger.Info("dispatch fan-out starting",
		zap.String("dispatch_id", dispatchID),
		zap.Int("lote_id", loteID),
		zap.String("destination", string(dest)),
		zap.Int("clients", len(payloads)),
		zap.Int("chunk_size", d.opts.ChunkSize))

	for start := 0; start < len(payloads); start += d.opts.ChunkSize {
		if start > 0 && d.opts.ChunkPause > 0 {
			time.Sleep(d.opts.ChunkPause)
		}
		end := start + d.opts.ChunkSize
		if end > len(payloads) {
			end = len(payloads)
		}
		chunk := payloads[start:end]

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			failures []string
		)
		for _, p := range chunk {
			wg.Add(1)
			go func(p clientPayload) {
				defer wg.Done()
				if err := queue.Publish(ctx, p.body); err != nil {
					mu.Lock()
					failures = append(failures, fmt.Sprintf("%s: %v", p.name, err))
					mu.Unlock()
				}
			}(p)
		}
		wg.Wait()

		if len(failures) > 0 {
			sort.Strings(failures)
			d.logger.Error("dispatch aborted",
				zap.String("dispatch_id", dispatchID),
				zap.Int("lote_id", loteID),
				zap.Int("failed", len(failures)))
			return fmt.Errorf("dispatch of lote %d aborted, %d request(s) failed: %s",
				loteID, len(failures), strings.Join(failures, "; "))
		}
	}

	d.logger.Info("dispatch fan-out complete",
		zap.String("dispatch_id", dispatchID),
		zap.Int("lote_id", loteID),
		zap.Int("clients", len(payloads)))
	return nil
}

// ensureFolder returns the lote's master folder, creating and caching it on
// first use. The cached id is the idempotency guard: repeat dispatches reuse
// the folder instead of racing the storage service's consistency lag.
func (d *Dispatcher) ensureFolder(ctx context.Context, lote *core.Lote) (string, bool, error) {
	if lote.DriveFolderID != "" {
		return lote.DriveFolderID, false, nil
	}
	name := fmt.Sprintf("Lote %s", lote.Competence)
	folderID, err := d.folders.FindOrCreateFolder(ctx, name, d.opts.RootFolderID)
	if err != nil {
		return "", false, fmt.Errorf("ensure folder for lote %d: %w", lote.ID, err)
	}
	if err := d.cache.SetDriveFolder(ctx, lote.ID, folderID); err != nil {
		return "", false, err
	}
	lote.DriveFolderID = folderID
	return folderID, true, nil
}

// UploadDocument stores one document in the lote's master folder, creating
// the folder if this is the first touch.
func (d *Dispatcher) UploadDocument(ctx context.Context, lote *core.Lote, name, mimeType string, data []byte) (string, error) {
	folderID, _, err := d.ensureFolder(ctx, lote)
	if err != nil {
		return "", err
	}
	return d.folders.Upload(ctx, folderID, name, mimeType, data)
}

// dispatchLegacy writes the flat spreadsheet (clearing the fixed range
// first) and fires the stateless webhook. The webhook outcome is logged
// only; the sheet write is the operation's actual result.
func (d *Dispatcher) dispatchLegacy(ctx context.Context, in Input, records []core.ConsolidatedRecord) error {
	if err := d.sheets.ClearRange(ctx, d.opts.SpreadsheetID, d.opts.SheetRange); err != nil {
		return fmt.Errorf("legacy export of lote %d: %w", in.Lote.ID, err)
	}

	rows := make([][]any, 0, len(records)+1)
	rows = append(rows, []any{"LOJA", "CNPJ", "COMPETENCIA", "LIQUIDO", "NF", "NC"})
	for _, r := range records {
		c := in.Clients[r.ClientID]
		if c == nil {
			continue
		}
		rows = append(rows, []any{
			c.LegalName,
			core.FormatCNPJ(c.CNPJ),
			in.Lote.Competence,
			core.RoundMoney(r.Net).StringFixed(2),
			core.RoundMoney(r.InvoiceShare).StringFixed(2),
			core.RoundMoney(r.CreditNoteShare).StringFixed(2),
		})
	}
	if err := d.sheets.WriteRows(ctx, d.opts.SpreadsheetID, d.opts.SheetRange, rows); err != nil {
		return fmt.Errorf("legacy export of lote %d: %w", in.Lote.ID, err)
	}

	d.notifier.Notify(ctx)
	return nil
}

func creditNotePayload(r core.ConsolidatedRecord, c *core.Client, invoiceNumber string) CreditNotePayload {
	return CreditNotePayload{
		Loja:             c.LegalName,
		CNPJ:             core.FormatCNPJ(c.CNPJ),
		NumeroNF:         invoiceNumber,
		NC:               core.RoundMoney(r.CreditNoteShare).StringFixed(2),
		GerarNotaCredito: r.CreditNoteShare.IsPositive(),
	}
}

func hoursPayload(r core.ConsolidatedRecord, c *core.Client, in Input, folderID string, children *childCache) HoursPayload {
	var acrescimos, descontos []LineItem
	for _, adj := range in.Adjustments {
		if adj.ClientID != c.ID {
			continue
		}
		item := LineItem{Descricao: adj.Reason, Valor: core.RoundMoney(adj.Value).StringFixed(2)}
		if adj.Type == core.AdjustmentSurcharge {
			acrescimos = append(acrescimos, item)
		} else {
			descontos = append(descontos, item)
		}
	}

	itemRows := make([][]string, 0)
	for _, row := range in.Rows {
		if row.ClientID != c.ID || row.Status != core.RowStatusValidated {
			continue
		}
		itemRows = append(itemRows, []string{
			row.Start.Format("02/01/2006"),
			row.End.Format("02/01/2006"),
			core.RoundMoney(row.Value).StringFixed(2),
		})
	}
	// A loja mãe additionally lists each filial as one descriptive line.
	for _, child := range children.childrenOf(c.ID) {
		total := childTotal(in, child.ID)
		itemRows = append(itemRows, []string{
			child.TradeName, "filial", core.RoundMoney(total).StringFixed(2),
		})
	}

	return HoursPayload{
		InfoLoja: StoreInfo{
			Nome:       c.LegalName,
			CNPJ:       core.FormatCNPJ(c.CNPJ),
			Competence: in.Lote.Competence,
			FolderID:   folderID,
		},
		ListaAcrescimos:    acrescimos,
		ListaDescontos:     descontos,
		FaturamentoHeaders: []string{"INICIO", "FIM", "VALOR"},
		ItensFaturadosRows: itemRows,
	}
}

// childTotal prefers the filial's own consolidated net and falls back to
// summing its validated rows when the filial was not consolidated on its own.
func childTotal(in Input, childID int) decimal.Decimal {
	for _, r := range in.Records {
		if r.ClientID == childID {
			return r.Net
		}
	}
	total := decimal.Zero
	for _, row := range in.Rows {
		if row.ClientID == childID && row.Status == core.RowStatusValidated {
			total = total.Add(row.Value)
		}
	}
	return total
}

// childCache memoizes the filial list per loja mãe within one dispatch call,
// so stores sharing a parent do not recompute the lookup.
type childCache struct {
	clients map[int]*core.Client
	cycles  map[int]bool
	cached  map[int][]*core.Client
}

func newChildCache(clients map[int]*core.Client, cycles map[int]bool) *childCache {
	return &childCache{clients: clients, cycles: cycles, cached: make(map[int][]*core.Client)}
}

func (cc *childCache) childrenOf(parentID int) []*core.Client {
	if kids, ok := cc.cached[parentID]; ok {
		return kids
	}
	var kids []*core.Client
	for _, c := range cc.clients {
		if c.ParentStoreID != nil && *c.ParentStoreID == parentID && cc.cycles[c.BillingCycleID] {
			kids = append(kids, c)
		}
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i].ID < kids[j].ID })
	cc.cached[parentID] = kids
	return kids
}
