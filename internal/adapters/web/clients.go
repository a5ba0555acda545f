package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"billing-console/internal/app"
	"billing-console/internal/core"
)

// clientPayload is the JSON body for client create/update.
type clientPayload struct {
	LegalName      string `json:"legal_name"`
	TradeName      string `json:"trade_name"`
	CNPJ           string `json:"cnpj"`
	AccountingName string `json:"accounting_name"`
	Email          string `json:"email"`
	BillingCycleID int    `json:"billing_cycle_id"`
	ParentStoreID  *int   `json:"parent_store_id"`
	Street         string `json:"street"`
	Number         string `json:"number"`
	District       string `json:"district"`
	City           string `json:"city"`
	State          string `json:"state"`
	ZipCode        string `json:"zip_code"`
	PaymentTerms   int    `json:"payment_terms_days"`
	NoInvoice      bool   `json:"no_invoice"`
}

func (p clientPayload) toRequest() app.ClientRequest {
	return app.ClientRequest{
		LegalName:      p.LegalName,
		TradeName:      p.TradeName,
		CNPJ:           p.CNPJ,
		AccountingName: p.AccountingName,
		Email:          p.Email,
		BillingCycleID: p.BillingCycleID,
		ParentStoreID:  p.ParentStoreID,
		Street:         p.Street,
		Number:         p.Number,
		District:       p.District,
		City:           p.City,
		State:          p.State,
		ZipCode:        p.ZipCode,
		PaymentTerms:   p.PaymentTerms,
		NoInvoice:      p.NoInvoice,
	}
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, clients)
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var p clientPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	client, err := h.svc.CreateClient(r.Context(), p.toRequest())
	if err != nil {
		if errors.Is(err, core.ErrDuplicateCNPJ) {
			writeError(w, r, err.Error(), "DUPLICATE_CNPJ", http.StatusConflict)
			return
		}
		serviceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, client)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	client, err := h.svc.GetClient(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, client)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var p clientPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	client, err := h.svc.UpdateClient(r.Context(), id, p.toRequest())
	if err != nil {
		if errors.Is(err, core.ErrDuplicateCNPJ) {
			writeError(w, r, err.Error(), "DUPLICATE_CNPJ", http.StatusConflict)
			return
		}
		serviceError(w, r, err)
		return
	}
	writeJSON(w, client)
}

func (h *Handler) importClients(w http.ResponseWriter, r *http.Request) {
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

	cycleID := 0
	if v := r.FormValue("billing_cycle_id"); v != "" {
		cycleID, err = strconv.Atoi(v)
	}
	if err != nil || cycleID <= 0 {
		writeError(w, r, "invalid billing_cycle_id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ImportClients(r.Context(), header.Filename, data, cycleID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) disableClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DisableClient(r.Context(), id); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
