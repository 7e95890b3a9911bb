package http

import (
	"net/http"
	"sync/atomic"

	"dompet/internal/core"
	"dompet/internal/ledger"
	dlog "dompet/internal/log"
	"dompet/internal/report"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	cats, err := s.lister.ListCategories(r.Context(), owner)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to list categories", err, dlog.ComponentLedger, dlog.OpList,
			dlog.NewFields().WithOwner(owner.OwnerID))
		ErrorFor(err).Write(w)
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryJSON(c))
	}
	NewJSONResponse().Data(map[string]any{"categories": out}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req CategoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	c, err := req.Category(owner)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	saved, err := s.ledger.CreateCategory(r.Context(), c)
	if err != nil {
		s.writeWriteError(w, r, "Failed to save category", dlog.OpCreate, err, owner)
		return
	}

	dlog.FromContext(r.Context()).WithComponent(dlog.ComponentLedger).InfoContext(r.Context(), "Category created",
		dlog.NewFields().
			WithOwner(saved.OwnerID).
			WithOperation(dlog.OpCreate).
			ToSlice()...)
	NewJSONResponse().Status(http.StatusCreated).Data(toCategoryJSON(saved)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id, err := ParsePathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.ledger.DeleteCategory(r.Context(), owner, id); err != nil {
		s.writeWriteError(w, r, "Failed to delete category", dlog.OpDelete, err, owner)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleListTransactions lists entries in the resolved range, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	span, ok := s.resolveSpan(w, r, s.aggregator.Today())
	if !ok {
		return
	}
	rng := report.NewRange(span.Start, span.End)

	entries, err := s.lister.ListEntries(r.Context(), ledger.Query{Owner: owner, Start: rng.Start, End: rng.End})
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to list transactions", err, dlog.ComponentLedger, dlog.OpList,
			dlog.NewFields().WithOwner(owner.OwnerID).WithRange(rng.Start.String(), rng.End.String()))
		ErrorFor(err).Write(w)
		return
	}
	core.SortNewestFirst(entries)
	out := make([]transactionJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	NewJSONResponse().Data(map[string]any{
		"date_filter":  rng,
		"transactions": out,
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req TransactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := req.Transaction(owner, s.aggregator.Today())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	saved, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		s.writeWriteError(w, r, "Failed to save transaction", dlog.OpCreate, err, owner)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactions, 1)
	s.structured.LogTransactionCreated(r.Context(), saved.OwnerID, saved.ID, saved.Amount.StringFixed(2), saved.Date.String())
	NewJSONResponse().Status(http.StatusCreated).Data(toTransactionJSON(saved)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id, err := ParsePathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), owner, id); err != nil {
		s.writeWriteError(w, r, "Failed to delete transaction", dlog.OpDelete, err, owner)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if owner.OwnerID == "" {
		// Browsers cannot set headers on the upgrade request.
		owner.OwnerID = sanitizeInput(r.URL.Query().Get("owner"))
		if len(owner.OwnerID) > maxOwnerIDBytes {
			BadRequestError("owner id too long").Write(w)
			return
		}
	}
	s.hub.ServeWS(w, r, owner.OwnerID)
}

// writeWriteError maps a service error and logs it when it is not the
// caller's fault.
func (s *Server) writeWriteError(w http.ResponseWriter, r *http.Request, msg, op string, err error, owner core.OwnerScope) {
	resp := ErrorFor(err)
	if resp.statusCode >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), msg, err, dlog.ComponentLedger, op,
			dlog.NewFields().WithOwner(owner.OwnerID))
	}
	resp.Write(w)
}
