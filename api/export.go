package api

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/warp/leave-ledger/generic"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const historySheet = "History"

var historyColumns = []any{
	"Date", "Employee ID", "Employee", "Year", "Action", "Days", "Request", "Details",
}

// ExportHistory streams the history log of a year as an XLSX workbook for
// audit. GET /api/history/export?year=2024 (defaults to the current year)
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	year := h.now().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := parseYear(s)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		year = y
	}

	entries, err := h.svc.History(r.Context(), generic.HistoryFilter{Year: year})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	employees, err := h.svc.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	names := make(map[string]string, len(employees))
	for _, e := range employees {
		names[e.ID] = e.Name
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="vacation-history-%d.xlsx"`, year))
	if err := writeHistoryWorkbook(w, entries, names); err != nil {
		h.logger.Error("history export failed", zap.Int("year", year), zap.Error(err))
	}
}

// writeHistoryWorkbook writes one row per entry, in log order, under a
// bold header row.
func writeHistoryWorkbook(w io.Writer, entries []generic.HistoryEntry, names map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(historySheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	f.SetColWidth(historySheet, "A", "A", 22)
	f.SetColWidth(historySheet, "B", "C", 24)
	f.SetColWidth(historySheet, "E", "E", 22)
	f.SetColWidth(historySheet, "H", "H", 60)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err := f.SetSheetRow(historySheet, "A1", &historyColumns); err != nil {
		return err
	}
	f.SetRowStyle(historySheet, 1, 1, headerStyle)

	for i, e := range entries {
		days, _ := e.DaysAffected.Float64()
		row := []any{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.EmployeeID,
			names[e.EmployeeID],
			e.Year,
			string(e.Action),
			days,
			e.Details["request_id"],
			formatDetails(e.Details),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func formatDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		if k != "request_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out string
	for i, k := range keys {
		if i > 0 {
			out += "; "
		}
		out += k + "=" + details[k]
	}
	return out
}
