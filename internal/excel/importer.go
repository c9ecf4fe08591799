package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/alfawz/hifz/pkg/models"
)

// Enroller creates a memorization plan and its review items
type Enroller interface {
	EnrollPlan(ctx context.Context, plan *models.MemorizationPlan) (int, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath        string // Path to the Excel or CSV file
	UserColumn      string // Column with the student's Telegram ID
	TitleColumn     string // Column with the plan title (optional, defaults to the surah name)
	SurahColumn     string // Column with the surah number
	StartAyahColumn string // Column with the first ayah
	EndAyahColumn   string // Column with the last ayah
	SheetName       string // Name of the sheet to import
	StartRow        int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		UserColumn:      "A",
		TitleColumn:     "B",
		SurahColumn:     "C",
		StartAyahColumn: "D",
		EndAyahColumn:   "E",
		SheetName:       "Sheet1",
		StartRow:        2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	PlansCreated   int
	ItemsEnrolled  int
	Skipped        int
	Errors         []string
}

type columns struct {
	user, title, surah, start, end int
}

func (c ImportConfig) columns() (columns, error) {
	var cols columns
	var err error
	idx := func(name string, required bool) int {
		if err != nil {
			return -1
		}
		if name == "" {
			if required {
				err = errors.New("missing required column")
			}
			return -1
		}
		n, e := excelize.ColumnNameToNumber(name)
		if e != nil {
			err = errors.Wrapf(e, "invalid column %q", name)
			return -1
		}
		return n - 1
	}
	cols.user = idx(c.UserColumn, true)
	cols.title = idx(c.TitleColumn, false)
	cols.surah = idx(c.SurahColumn, true)
	cols.start = idx(c.StartAyahColumn, true)
	cols.end = idx(c.EndAyahColumn, true)
	return cols, err
}

// ImportFile imports plans from an Excel or CSV file
func ImportFile(ctx context.Context, config ImportConfig, enroller Enroller) (*ImportResult, error) {
	f, err := os.Open(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open import file")
	}
	defer f.Close()
	return Import(ctx, f, filepath.Ext(config.FilePath), config, enroller)
}

// Import reads plan rows from r. ext selects the format: ".csv" or an Excel extension.
func Import(ctx context.Context, r io.Reader, ext string, config ImportConfig, enroller Enroller) (*ImportResult, error) {
	cols, err := config.columns()
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if strings.EqualFold(ext, ".csv") {
		rows, err = readCSV(r)
	} else {
		rows, err = readExcel(r, config.SheetName)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}
		if isBlank(row) {
			result.Skipped++
			continue
		}

		result.TotalProcessed++
		if err := processRow(ctx, row, cols, enroller, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}
	return result, nil
}

func readExcel(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get rows of sheet %q", sheet)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "error reading CSV")
	}
	return rows, nil
}

func processRow(ctx context.Context, row []string, cols columns, enroller Enroller, result *ImportResult) error {
	userID, err := strconv.ParseInt(cell(row, cols.user), 10, 64)
	if err != nil {
		return errors.Errorf("invalid user ID %q", cell(row, cols.user))
	}
	surah, err := intCell(row, cols.surah, "surah")
	if err != nil {
		return err
	}
	start, err := intCell(row, cols.start, "start ayah")
	if err != nil {
		return err
	}
	end := start
	if cell(row, cols.end) != "" {
		if end, err = intCell(row, cols.end, "end ayah"); err != nil {
			return err
		}
	}

	plan := &models.MemorizationPlan{
		UserID:    userID,
		Title:     cell(row, cols.title),
		SurahID:   surah,
		StartAyah: start,
		EndAyah:   end,
	}
	n, err := enroller.EnrollPlan(ctx, plan)
	if err != nil {
		return err
	}
	result.PlansCreated++
	result.ItemsEnrolled += n
	return nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func intCell(row []string, idx int, name string) (int, error) {
	v := cell(row, idx)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
