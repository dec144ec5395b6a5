/*
export.go - XLSX export of the monthly billing view

PURPOSE:
  Produces a spreadsheet mirror of the monthly pending list so the
  practitioner can keep an offline copy or share it with her accountant.
  One row per included patient, same figures the JSON endpoint returns.
*/
package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/consultorio/practice-engine/billing"
)

// ExportMonthlyBilling streams the month's billing rows as an .xlsx file.
// GET /api/billing/export?year=&month=
func (h *Handler) ExportMonthlyBilling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, err := h.monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	patients, err := h.Store.ListPatients(ctx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list patients", err)
		return
	}

	records, err := h.Store.ListReconciliations(ctx, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load billing records", err)
		return
	}

	type exportRow struct {
		name    string
		balance billing.MonthBalance
		rec     *billing.ReconciliationRecord
	}
	var rows []exportRow

	for _, p := range patients {
		sessions, err := h.Store.ListSessionsByPatient(ctx, p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
			return
		}
		payments, err := h.Store.ListPaymentsReceivedByPatient(ctx, p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
			return
		}

		balance := billing.ComputeMonthBalance(p.ID, sessions, payments, year, month)
		if !balance.Include() {
			continue
		}

		var existing *billing.ReconciliationRecord
		if stored, ok := records[p.ID]; ok {
			rec := stored
			existing = &rec
		}
		rec, err := h.Reconciler.ReconcileExisting(ctx, existing, balance, payments)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reconcile", err)
			return
		}
		rows = append(rows, exportRow{name: p.Name, balance: balance, rec: rec})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	f := excelize.NewFile()
	sheetName := fmt.Sprintf("Facturación %d-%02d", year, int(month))
	index, err := f.NewSheet(sheetName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create sheet", err)
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{
		"Paciente", "Sesiones", "Horas", "Total mes",
		"Saldo anterior", "Total final",
		"Enviado", "Facturado", "Pagado",
	}
	for i, head := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, head)
	}

	boolMark := func(b bool) string {
		if b {
			return "Sí"
		}
		return "No"
	}

	total := decimal.Zero
	for idx, row := range rows {
		excelRow := idx + 2
		b := row.balance

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", excelRow), row.name)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", excelRow), b.Summary.Count)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", excelRow), b.Summary.Hours.String())
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", excelRow), b.MonthTotal.String())
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", excelRow), b.PriorBalance.String())
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", excelRow), b.TotalFinal.String())
		if row.rec != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("G%d", excelRow), boolMark(row.rec.SentToGuardian))
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", excelRow), boolMark(row.rec.Invoiced))
			f.SetCellValue(sheetName, fmt.Sprintf("I%d", excelRow), boolMark(row.rec.FullyPaid))
		}
		total = total.Add(b.TotalFinal)
	}

	totalRow := len(rows) + 2
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", totalRow), "TOTAL")
	f.SetCellValue(sheetName, fmt.Sprintf("F%d", totalRow), total.String())

	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "C", 10)
	f.SetColWidth(sheetName, "D", "F", 16)
	f.SetColWidth(sheetName, "G", "I", 10)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"facturacion_%d_%02d.xlsx\"", year, int(month)))

	if err := f.Write(w); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write spreadsheet", err)
	}
}
