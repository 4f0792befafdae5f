package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmapos/backend/internal/domain"
)

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	sale, err := a.service.CreateSale(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	sales, err := a.service.ListSales(r.Context(), actor(r).PharmacyID, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), actor(r).PharmacyID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.CancelSale(r.Context(), actor(r).PharmacyID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleRefundSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.RefundSale(r.Context(), actor(r).PharmacyID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSale(r.Context(), actor(r).PharmacyID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateHoldRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	held, err := a.service.CreateHold(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"hold": held})
}

func (a *API) handleListHolds(w http.ResponseWriter, r *http.Request) {
	holds, err := a.service.ListHolds(r.Context(), actor(r).PharmacyID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holds)
}

func (a *API) handleCompleteHold(w http.ResponseWriter, r *http.Request) {
	var req domain.CompleteHoldRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	sale, err := a.service.CompleteHold(r.Context(), who.PharmacyID, who.UserID, chi.URLParam(r, "id"), req.PaymentType)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleDiscardHold(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardHold(r.Context(), actor(r).PharmacyID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLookupPrescription(w http.ResponseWriter, r *http.Request) {
	var req domain.PrescriptionLookupRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	prescription, created, err := a.service.LookupPrescription(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"prescription": prescription, "created": created})
}

func (a *API) handleListPrescriptions(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := a.service.ListPrescriptions(r.Context(), actor(r).PharmacyID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptions)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), actor(r).PharmacyID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), actor(r).PharmacyID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListLowStock(r.Context(), actor(r).PharmacyID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleExpiring(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	products, err := a.service.ListExpiring(r.Context(), actor(r).PharmacyID, days)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleStockEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.StockEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	product, err := a.service.StockEntry(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	movements, err := a.service.ListStockMovements(r.Context(), actor(r).PharmacyID, r.URL.Query().Get("product_id"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

func (a *API) handleCashStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.CashStatus(r.Context(), actor(r).PharmacyID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleOpenRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	register, err := a.service.OpenRegister(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"register": register})
}

func (a *API) handleCloseRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.CloseRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	register, err := a.service.CloseRegister(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"register": register})
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePurchaseOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	order, err := a.service.CreatePurchaseOrder(r.Context(), actor(r).PharmacyID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase_order": order})
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	orders, err := a.service.ListPurchaseOrders(r.Context(), actor(r).PharmacyID, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handleImportInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.WarehouseInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	who := actor(r)
	summary, err := a.service.ImportWarehouseInvoice(r.Context(), who.PharmacyID, who.UserID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
