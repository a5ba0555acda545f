package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"billing-console/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFolders struct {
	mu      sync.Mutex
	created int
	uploads []string
}

func (f *fakeFolders) FindOrCreateFolder(_ context.Context, name, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return "folder-" + name, nil
}

func (f *fakeFolders) Upload(_ context.Context, folderID, name, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, folderID+"/"+name)
	return "file-" + name, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	payloads []any
	// failFor makes Publish fail for payloads carrying the given store name.
	failFor map[string]bool
	// chunks records how many publishes were in flight together, by
	// snapshotting the counter each call observes on entry.
	inFlight    int
	maxInFlight int
	barrier     chan struct{}
}

func (q *fakeQueue) Publish(_ context.Context, payload any) error {
	q.mu.Lock()
	q.inFlight++
	if q.inFlight > q.maxInFlight {
		q.maxInFlight = q.inFlight
	}
	q.payloads = append(q.payloads, payload)
	name := payloadName(payload)
	fail := q.failFor[name]
	q.mu.Unlock()

	if q.barrier != nil {
		<-q.barrier
	}

	q.mu.Lock()
	q.inFlight--
	q.mu.Unlock()

	if fail {
		return errors.New("boom")
	}
	return nil
}

func payloadName(p any) string {
	switch v := p.(type) {
	case CreditNotePayload:
		return v.Loja
	case HoursPayload:
		return v.InfoLoja.Nome
	}
	return ""
}

type fakeSheets struct {
	cleared bool
	rows    [][]any
}

func (s *fakeSheets) ClearRange(context.Context, string, string) error { s.cleared = true; return nil }

func (s *fakeSheets) WriteRows(_ context.Context, _, _ string, rows [][]any) error {
	s.rows = rows
	return nil
}

type fakeCache struct{ saved map[int]string }

func (c *fakeCache) SetDriveFolder(_ context.Context, loteID int, folderID string) error {
	if c.saved == nil {
		c.saved = make(map[int]string)
	}
	c.saved[loteID] = folderID
	return nil
}

func testOptions() Options {
	return Options{
		RootFolderID:  "root",
		SpreadsheetID: "sheet",
		SheetRange:    "Consolidado!A1:F",
		ChunkSize:     10,
	}
}

func dispatchInput(n int) Input {
	lote := &core.Lote{ID: 1, Competence: "2026-07"}
	in := Input{
		Lote:    lote,
		Clients: make(map[int]*core.Client),
	}
	for i := 1; i <= n; i++ {
		in.Clients[i] = &core.Client{
			ID: i, LegalName: fmt.Sprintf("Loja %02d", i),
			CNPJ: fmt.Sprintf("%014d", i), IsActive: true,
		}
		net := decimal.NewFromInt(int64(100 * i))
		in.Records = append(in.Records, core.ConsolidatedRecord{
			LoteID: 1, ClientID: i,
			Net:             net,
			InvoiceShare:    net.Mul(decimal.RequireFromString("0.115")),
			CreditNoteShare: net.Mul(decimal.RequireFromString("0.885")),
		})
	}
	return in
}

func newTestDispatcher(q *fakeQueue, f *fakeFolders, s *fakeSheets, c *fakeCache) *Dispatcher {
	return NewDispatcher(f, q, q, s, NewNotifier("", zap.NewNop()), c, zap.NewNop(), testOptions())
}

func TestDispatcher_ChunkedFanOut(t *testing.T) {
	q := &fakeQueue{}
	d := newTestDispatcher(q, &fakeFolders{}, &fakeSheets{}, &fakeCache{})

	err := d.Dispatch(context.Background(), DestinationInvoice, dispatchInput(23))
	require.NoError(t, err)

	assert.Len(t, q.payloads, 23)
	assert.LessOrEqual(t, q.maxInFlight, 10, "no more than one chunk in flight")
}

func TestDispatcher_ChunkRunsConcurrently(t *testing.T) {
	q := &fakeQueue{barrier: make(chan struct{})}
	d := newTestDispatcher(q, &fakeFolders{}, &fakeSheets{}, &fakeCache{})

	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(context.Background(), DestinationInvoice, dispatchInput(10))
	}()

	// All ten requests of the single chunk block on the barrier together.
	for {
		q.mu.Lock()
		n := q.inFlight
		q.mu.Unlock()
		if n == 10 {
			break
		}
		runtime.Gosched()
	}
	close(q.barrier)
	require.NoError(t, <-done)
	assert.Equal(t, 10, q.maxInFlight)
}

func TestDispatcher_AbortsAfterFailedChunk(t *testing.T) {
	q := &fakeQueue{failFor: map[string]bool{"Loja 03": true}}
	d := newTestDispatcher(q, &fakeFolders{}, &fakeSheets{}, &fakeCache{})

	err := d.Dispatch(context.Background(), DestinationInvoice, dispatchInput(25))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Loja 03: boom")
	// First chunk ran to completion; nothing after it was attempted.
	assert.Len(t, q.payloads, 10)
}

func TestDispatcher_FolderIdempotency(t *testing.T) {
	f := &fakeFolders{}
	cache := &fakeCache{}
	d := newTestDispatcher(&fakeQueue{}, f, &fakeSheets{}, cache)
	in := dispatchInput(3)

	require.NoError(t, d.Dispatch(context.Background(), DestinationHours, in))
	require.NoError(t, d.Dispatch(context.Background(), DestinationHours, in))

	assert.Equal(t, 1, f.created, "second dispatch reuses the cached folder")
	assert.Equal(t, "folder-Lote 2026-07", cache.saved[1])
	assert.Equal(t, "folder-Lote 2026-07", in.Lote.DriveFolderID)
}

func TestDispatcher_CreditNotePayloadContents(t *testing.T) {
	q := &fakeQueue{}
	d := newTestDispatcher(q, &fakeFolders{}, &fakeSheets{}, &fakeCache{})
	in := dispatchInput(1)
	in.InvoiceNumbers = map[int]string{1: "4821"}

	require.NoError(t, d.Dispatch(context.Background(), DestinationInvoice, in))
	require.Len(t, q.payloads, 1)

	p, ok := q.payloads[0].(CreditNotePayload)
	require.True(t, ok)
	assert.Equal(t, "Loja 01", p.Loja)
	assert.Equal(t, "00.000.000/0000-01", p.CNPJ)
	assert.Equal(t, "4821", p.NumeroNF)
	assert.Equal(t, "88.50", p.NC)
	assert.True(t, p.GerarNotaCredito)
}

func TestDispatcher_HoursPayloadNestsChildren(t *testing.T) {
	q := &fakeQueue{}
	d := newTestDispatcher(q, &fakeFolders{}, &fakeSheets{}, &fakeCache{})

	parentID := 1
	in := dispatchInput(2)
	in.Clients[2].ParentStoreID = &parentID
	in.Clients[2].TradeName = "Filial Sul"
	in.Clients[2].BillingCycleID = 9
	in.MultiStoreCycles = map[int]bool{9: true}
	// Only dispatch the parent's record; the filial shows up as a line item.
	in.Records = in.Records[:1]
	in.Adjustments = []core.Adjustment{{
		ClientID: 1, Type: core.AdjustmentDiscount,
		Value: decimal.NewFromInt(30), Reason: "desconto comercial",
	}}

	require.NoError(t, d.Dispatch(context.Background(), DestinationHours, in))
	require.Len(t, q.payloads, 1)

	p, ok := q.payloads[0].(HoursPayload)
	require.True(t, ok)
	assert.Equal(t, "Loja 01", p.InfoLoja.Nome)
	assert.NotEmpty(t, p.InfoLoja.FolderID)
	assert.Equal(t, []string{"INICIO", "FIM", "VALOR"}, p.FaturamentoHeaders)
	require.Len(t, p.ListaDescontos, 1)
	assert.Equal(t, "desconto comercial", p.ListaDescontos[0].Descricao)
	assert.Empty(t, p.ListaAcrescimos)
	require.Len(t, p.ItensFaturadosRows, 1)
	assert.Equal(t, []string{"Filial Sul", "filial", "0.00"}, p.ItensFaturadosRows[0])
}

func TestDispatcher_LegacyClearsThenWrites(t *testing.T) {
	s := &fakeSheets{}
	d := newTestDispatcher(&fakeQueue{}, &fakeFolders{}, s, &fakeCache{})

	require.NoError(t, d.Dispatch(context.Background(), DestinationLegacy, dispatchInput(2)))

	assert.True(t, s.cleared)
	require.Len(t, s.rows, 3) // header + two stores
	assert.Equal(t, []any{"LOJA", "CNPJ", "COMPETENCIA", "LIQUIDO", "NF", "NC"}, s.rows[0])
	assert.Equal(t, "Loja 01", s.rows[1][0])
	assert.Equal(t, "100.00", s.rows[1][3])
}

func TestDispatcher_LocalFallbackWhenNoRecords(t *testing.T) {
	q := &fakeQueue{}
	d := newTestDispatcher(q, &fakeFolders{}, &fakeSheets{}, &fakeCache{})

	in := dispatchInput(1)
	in.Records = nil
	in.Clients[1].Street = "Rua A"
	in.Clients[1].Number = "10"
	in.Clients[1].District = "Centro"
	in.Clients[1].City = "Campinas"
	in.Clients[1].State = "SP"
	in.Clients[1].ZipCode = "13000-000"
	in.Rows = []core.UsageRow{{
		LoteID: 1, ClientID: 1, Status: core.RowStatusValidated,
		Value: decimal.NewFromInt(200),
	}}

	require.NoError(t, d.Dispatch(context.Background(), DestinationInvoice, in))
	require.Len(t, q.payloads, 1)
	p := q.payloads[0].(CreditNotePayload)
	assert.Equal(t, "177.00", p.NC)
}

func TestDispatcher_NothingToDispatch(t *testing.T) {
	d := newTestDispatcher(&fakeQueue{}, &fakeFolders{}, &fakeSheets{}, &fakeCache{})
	in := dispatchInput(0)
	err := d.Dispatch(context.Background(), DestinationInvoice, in)
	require.Error(t, err)
}
