// Package export renders statistics, bookings and programme schedules as
// Excel workbooks and iCalendar feeds.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"parish/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary    = "Summary"
	SheetByType     = "By type"
	SheetTrend      = "Trend"
	SheetAttendance = "Attendance"
	SheetBookings   = "Bookings"
)

// Exporter writes generated files into a directory.
type Exporter struct {
	dir    string
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger
}

// NewExporter names files and formats booking times in loc.
func NewExporter(dir string, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{dir: dir, loc: loc, now: time.Now, logger: logger}
}

// SaveStatistics writes the statistics workbook and returns its path.
func (e *Exporter) SaveStatistics(st *models.Statistics, programmes []models.Programme, summaries map[int64]models.AttendanceSummary) (string, error) {
	f, err := StatisticsWorkbook(st, programmes, summaries)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return e.save(f, fmt.Sprintf("statistics_%s.xlsx", e.now().In(e.loc).Format("2006-01-02_150405")))
}

// SaveBookings writes the bookings of [from, to) and returns the file path.
func (e *Exporter) SaveBookings(bookings []models.Booking, from, to time.Time) (string, error) {
	f, err := BookingsWorkbook(bookings, from, to, e.loc)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return e.save(f, fmt.Sprintf("bookings_%s_to_%s.xlsx", from.In(e.loc).Format(models.DateLayout), to.In(e.loc).Format(models.DateLayout)))
}

func (e *Exporter) save(f *excelize.File, name string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	e.logger.Info().Str("file_path", path).Msg("Excel file created")
	return path, nil
}

// WorkbookBytes serializes a workbook for streaming over HTTP.
func WorkbookBytes(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

type styles struct {
	header int
	title  int
}

func newStyles(f *excelize.File) (styles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return styles{}, err
	}
	title, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	if err != nil {
		return styles{}, err
	}
	return styles{header: header, title: title}, nil
}

// StatisticsWorkbook builds the dashboard workbook. summaries may be nil.
func StatisticsWorkbook(st *models.Statistics, programmes []models.Programme, summaries map[int64]models.AttendanceSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	s, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetByType, SheetTrend, SheetAttendance} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("error creating sheet: %w", err)
		}
	}

	writeSummary(f, s, st)
	writeByType(f, s, st.ProgrammesByType)
	writeTrend(f, s, st.ParticipantsTrend)
	writeAttendance(f, s, programmes, summaries)

	f.SetActiveSheet(0)
	return f, nil
}

func writeSummary(f *excelize.File, s styles, st *models.Statistics) {
	_ = f.SetCellValue(SheetSummary, "A1", "Parish programme statistics")
	_ = f.SetCellStyle(SheetSummary, "A1", "A1", s.title)
	_ = f.MergeCell(SheetSummary, "A1", "B1")

	rows := [][]interface{}{
		{"Generated at", st.GeneratedAt.Format(models.DateTimeLayout)},
		{"Total programmes", st.TotalProgrammes},
		{"Active programmes", st.ActiveProgrammes},
		{"Completed programmes", st.CompletedProgrammes},
		{"Total participants", st.TotalParticipants},
		{"Attendance rate, %", round1(st.AttendanceRate)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetSheetRow(SheetSummary, cell, &row)
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 25)
	_ = f.SetColWidth(SheetSummary, "B", "B", 20)
}

func writeByType(f *excelize.File, s styles, byType map[string]int) {
	header(f, s, SheetByType, "Type", "Programmes")

	labels := make([]string, 0, len(byType))
	for k := range byType {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	for i, label := range labels {
		row := []interface{}{label, byType[label]}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(SheetByType, cell, &row)
	}
	_ = f.SetColWidth(SheetByType, "A", "A", 25)
}

func writeTrend(f *excelize.File, s styles, trend []models.TrendPoint) {
	header(f, s, SheetTrend, "Month", "Attendances")
	for i, p := range trend {
		row := []interface{}{p.Label, p.Count}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(SheetTrend, cell, &row)
	}
	if len(trend) == 0 {
		return
	}

	last := len(trend) + 1
	_ = f.AddChart(SheetTrend, "D2", &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{{
			Name:       "Attendances",
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", SheetTrend, last),
			Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", SheetTrend, last),
		}},
		Title:  []excelize.RichTextRun{{Text: "Participants trend"}},
		Legend: excelize.ChartLegend{Position: "none"},
	})
}

func writeAttendance(f *excelize.File, s styles, programmes []models.Programme, summaries map[int64]models.AttendanceSummary) {
	header(f, s, SheetAttendance, "Programme", "Type", "Status", "Attendees", "Present", "Records", "Rate, %")
	for i := range programmes {
		p := &programmes[i]
		sum := summaries[p.ID]
		row := []interface{}{p.Name, p.TypeLabel(), string(p.Status), len(p.Attendees), sum.Present, sum.Total, round1(sum.Rate)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(SheetAttendance, cell, &row)
	}
	_ = f.SetColWidth(SheetAttendance, "A", "A", 30)
	_ = f.SetColWidth(SheetAttendance, "B", "G", 14)
}

// BookingsWorkbook lists bookings of a period, one row per booking, with
// times shown in loc.
func BookingsWorkbook(bookings []models.Booking, from, to time.Time, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.Local
	}
	f := excelize.NewFile()
	s, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetName("Sheet1", SheetBookings); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.SetCellValue(SheetBookings, "A1", fmt.Sprintf("Period: %s - %s", from.In(loc).Format(models.DateLayout), to.In(loc).Format(models.DateLayout)))
	_ = f.SetCellStyle(SheetBookings, "A1", "A1", s.title)
	_ = f.MergeCell(SheetBookings, "A1", "G1")

	cols := []interface{}{"ID", "Resource", "Member", "Purpose", "Start", "End", "Status"}
	_ = f.SetSheetRow(SheetBookings, "A2", &cols)
	_ = f.SetCellStyle(SheetBookings, "A2", "G2", s.header)

	sorted := append([]models.Booking(nil), bookings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for i := range sorted {
		b := &sorted[i]
		row := []interface{}{b.ID, b.ResourceName, b.MemberName, b.Purpose,
			b.Start.In(loc).Format(models.DateTimeLayout), b.End.In(loc).Format(models.DateTimeLayout), string(b.Status)}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetSheetRow(SheetBookings, cell, &row)
	}
	_ = f.SetColWidth(SheetBookings, "B", "D", 22)
	_ = f.SetColWidth(SheetBookings, "E", "F", 18)
	return f, nil
}

func header(f *excelize.File, s styles, sheet string, titles ...interface{}) {
	_ = f.SetSheetRow(sheet, "A1", &titles)
	last, _ := excelize.CoordinatesToCellName(len(titles), 1)
	_ = f.SetCellStyle(sheet, "A1", last, s.header)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
