package web

import (
	"io"
	"net/http"
	"strconv"

	"billing-console/internal/app"
	"billing-console/internal/core"
	"billing-console/internal/dispatch"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// uploadLimit caps multipart uploads; partner spreadsheets and fiscal PDFs
// stay well under this.
const uploadLimit = 50 << 20

func (h *Handler) listLotes(w http.ResponseWriter, r *http.Request) {
	lotes, err := h.svc.ListLotes(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, lotes)
}

func (h *Handler) createLote(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Competence string `json:"competence"`
		CycleStart string `json:"cycle_start"`
		CycleEnd   string `json:"cycle_end"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	lote, err := h.svc.CreateLote(r.Context(), app.CreateLoteRequest{
		Competence: p.Competence,
		CycleStart: p.CycleStart,
		CycleEnd:   p.CycleEnd,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, lote)
}

func (h *Handler) getLote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lote, err := h.svc.GetLote(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, lote)
}

func (h *Handler) advanceLote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var p struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	lote, err := h.svc.AdvanceLote(r.Context(), id, core.LoteStatus(p.Status))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, lote)
}

func (h *Handler) closeLote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lote, err := h.svc.CloseLote(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, lote)
}

func (h *Handler) requestLoteDeletion(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lote, err := h.svc.RequestLoteDeletion(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, lote)
}

func (h *Handler) deleteLote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteLote(r.Context(), id); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadUsage handles the partner spreadsheet upload. An optional
// parent_store_id form field restricts matching to one franchise group.
func (h *Handler) uploadUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	file, header, err := formFile(w, r, "file")
	if err != nil {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, "reading upload failed", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	parentID := 0
	if v := r.FormValue("parent_store_id"); v != "" {
		parentID, err = strconv.Atoi(v)
		if err != nil || parentID <= 0 {
			writeError(w, r, "invalid parent_store_id", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
	}

	result, err := h.svc.ImportUsage(r.Context(), id, header.Filename, data, parentID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// uploadFiscalDocument stores one fiscal document and records its extracted
// invoice number plus the declared IRRF for the client.
func (h *Handler) uploadFiscalDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	file, header, err := formFile(w, r, "file")
	if err != nil {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, "reading upload failed", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	clientID, err := strconv.Atoi(r.FormValue("client_id"))
	if err != nil || clientID <= 0 {
		writeError(w, r, "invalid client_id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	irrf := decimal.Zero
	if v := r.FormValue("irrf"); v != "" {
		irrf = core.ParseMoney(v)
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	result, err := h.svc.AttachFiscalDocument(r.Context(), app.FiscalDocumentRequest{
		LoteID:   id,
		ClientID: clientID,
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
		IRRF:     irrf,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listUnresolvedRows(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	rows, err := h.svc.ListUnresolvedRows(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

func (h *Handler) resolveRow(w http.ResponseWriter, r *http.Request) {
	rowID, ok := idParam(w, r, "rowID")
	if !ok {
		return
	}
	var p struct {
		ClientID int `json:"client_id"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.ClientID <= 0 {
		writeError(w, r, "client_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.ResolveRow(r.Context(), rowID, p.ClientID); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) suggestRowMatches(w http.ResponseWriter, r *http.Request) {
	rowID, ok := idParam(w, r, "rowID")
	if !ok {
		return
	}
	result, err := h.svc.SuggestRowMatches(r.Context(), rowID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) consolidateLote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.ConsolidateLote(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) getConsolidation(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetConsolidation(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	clientID := 0
	if v := r.URL.Query().Get("client_id"); v != "" {
		var err error
		clientID, err = strconv.Atoi(v)
		if err != nil || clientID <= 0 {
			writeError(w, r, "invalid client_id", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
	}
	pendingOnly := r.URL.Query().Get("pending") == "true"

	adjustments, err := h.svc.ListAdjustments(r.Context(), clientID, pendingOnly)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, adjustments)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var p struct {
		ClientID int    `json:"client_id"`
		Type     string `json:"type"`
		Value    string `json:"value"`
		Reason   string `json:"reason"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	adj, err := h.svc.CreateAdjustment(r.Context(), app.AdjustmentRequest{
		ClientID: p.ClientID,
		Type:     p.Type,
		Value:    core.ParseMoney(p.Value),
		Reason:   p.Reason,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, adj)
}

func (h *Handler) dispatchLote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var p struct {
		Destination string `json:"destination"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	dest := dispatch.Destination(p.Destination)
	switch dest {
	case dispatch.DestinationInvoice, dispatch.DestinationHours, dispatch.DestinationLegacy:
	default:
		writeError(w, r, "unknown destination", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.svc.DispatchLote(r.Context(), id, dest); err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "dispatched"})
}

func (h *Handler) exportWorkbook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	kind := app.ExportKind(chi.URLParam(r, "kind"))
	switch kind {
	case app.ExportInvoice, app.ExportStaging, app.ExportRejected:
	default:
		writeError(w, r, "unknown export kind", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ExportWorkbook(r.Context(), id, kind)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	_, _ = w.Write(result.Data)
}

func (h *Handler) emailDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.EmailDocuments(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
