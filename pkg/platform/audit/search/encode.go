package search

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/integrity"
)

const xlsxSheet = "Audit Events"

var contentTypes = map[Format]string{
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var encoders = map[Format]func([]audit.Event, time.Time) ([]byte, error){
	FormatJSON: encodeJSON,
	FormatCSV:  encodeCSV,
	FormatXLSX: encodeXLSX,
}

// Columns is the tabular export layout shared by csv and xlsx. Free-form
// maps are written as JSON text.
var Columns = []string{
	"id", "timestamp", "category", "action", "severity", "admin_id", "admin_roles",
	"resource", "resource_id", "success", "error", "old_values", "new_values", "metadata",
	"instance_id", "sequence", "verification_hash",
}

// JSONExport is the document written by the json format.
type JSONExport struct {
	ExportedAt  time.Time     `json:"exportedAt"`
	RecordCount int           `json:"recordCount"`
	Events      []audit.Event `json:"events"`
}

func encodeJSON(events []audit.Event, at time.Time) ([]byte, error) {
	if events == nil {
		events = []audit.Event{}
	}
	return json.MarshalIndent(JSONExport{ExportedAt: at, RecordCount: len(events), Events: events}, "", "  ")
}

func encodeCSV(events []audit.Event, _ time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, e := range events {
		row, err := record(e)
		if err != nil {
			return nil, err
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXLSX(events []audit.Event, _ time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &Columns); err != nil {
		return nil, err
	}
	for i, e := range events {
		row, err := record(e)
		if err != nil {
			return nil, err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func record(e audit.Event) ([]string, error) {
	oldValues, err := jsonText(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("event %s old values: %w", e.ID, err)
	}
	newValues, err := jsonText(e.NewValues)
	if err != nil {
		return nil, fmt.Errorf("event %s new values: %w", e.ID, err)
	}
	metadata, err := jsonText(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("event %s metadata: %w", e.ID, err)
	}
	return []string{
		e.ID,
		e.Timestamp.UTC().Format(integrity.TimestampLayout),
		string(e.Category),
		string(e.Action),
		string(e.Severity),
		e.AdminID,
		strings.Join(e.AdminRoles, ";"),
		e.Resource,
		e.ResourceID,
		strconv.FormatBool(e.Success),
		e.Error,
		oldValues,
		newValues,
		metadata,
		e.InstanceID,
		strconv.FormatInt(e.Sequence, 10),
		e.VerificationHash,
	}, nil
}

func jsonText(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
