// Package export writes the accumulated event catalog to spreadsheets.
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/withObsrvr/tour-discovery/pkg/campaign"
	"github.com/withObsrvr/tour-discovery/pkg/rawevents"
)

const (
	EventsSheet = "Events"
	timeLayout  = "2006-01-02 15:04:05"
)

var (
	EventHeaders = []string{"Event ID", "Name", "Start (UTC)", "Route ID", "Discovered (UTC)"}
	StageHeaders = []string{"Rank", "Event ID", "Name", "Start (UTC)", "Score"}
)

// ExcelWriter appends rows to the sheets of a new workbook.
type ExcelWriter struct {
	filePath string
	file     *excelize.File
	rows     map[string]int
}

// NewExcelWriter starts a workbook whose first sheet is sheetName with the
// given header row. The file is written by Save.
func NewExcelWriter(filePath, sheetName string, headers []string) (*ExcelWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("error naming sheet %s: %w", sheetName, err)
	}
	w := &ExcelWriter{filePath: filePath, file: f, rows: make(map[string]int)}
	if err := w.AppendRow(sheetName, toValues(headers)); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// AddSheet creates another sheet with a header row.
func (w *ExcelWriter) AddSheet(sheetName string, headers []string) error {
	if _, err := w.file.NewSheet(sheetName); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", sheetName, err)
	}
	return w.AppendRow(sheetName, toValues(headers))
}

func (w *ExcelWriter) AppendRow(sheetName string, values []interface{}) error {
	rowNum := w.rows[sheetName] + 1
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return fmt.Errorf("error addressing cell: %w", err)
		}
		if err := w.file.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("error writing cell %s!%s: %w", sheetName, cell, err)
		}
	}
	w.rows[sheetName] = rowNum
	return nil
}

func (w *ExcelWriter) Save() error {
	if err := w.file.SaveAs(w.filePath); err != nil {
		return fmt.Errorf("error saving Excel file: %w", err)
	}
	return nil
}

func (w *ExcelWriter) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// WriteCatalog writes every catalog record to the Events sheet, oldest
// event first, and when c is non-nil adds one ranked sheet per stage.
func WriteCatalog(filePath string, cat rawevents.Catalog, c *campaign.Campaign) error {
	w, err := NewExcelWriter(filePath, EventsSheet, EventHeaders)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, rec := range sortedRecords(cat) {
		row := []interface{}{rec.ID, rec.Name, formatTime(rec.Time()), rec.RouteID, formatTime(rec.DiscoveredAt)}
		if err := w.AppendRow(EventsSheet, row); err != nil {
			return err
		}
	}

	if c != nil {
		scorer := rawevents.NewScorer(c)
		for _, stage := range c.Stages {
			sheet := StageSheetName(stage)
			if err := w.AddSheet(sheet, StageHeaders); err != nil {
				return err
			}
			start, end := stage.DayWindow()
			for i, ev := range scorer.StageEvents(cat, stage, start, end) {
				row := []interface{}{i + 1, ev.ID, ev.Name, formatTime(ev.Time), ev.Score}
				if err := w.AppendRow(sheet, row); err != nil {
					return err
				}
			}
		}
	}

	return w.Save()
}

// StageSheetName is the sheet holding a stage's ranked events.
func StageSheetName(stage campaign.Stage) string {
	return "Stage " + stage.ID
}

func sortedRecords(cat rawevents.Catalog) []rawevents.Record {
	records := make([]rawevents.Record, 0, len(cat))
	for _, rec := range cat {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp < records[j].Timestamp
		}
		return records[i].ID < records[j].ID
	})
	return records
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func toValues(headers []string) []interface{} {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	return values
}
