package db

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gorm.io/gorm"
)

const defaultPromptCategory = "general"

type PromptRecord struct {
	Category string
	Text     string
}

// LoadPromptLibrary reads prompts from a CSV and upserts them into the prompt_library table.
func LoadPromptLibrary(conn *gorm.DB, path string) (int, error) {
	if conn == nil {
		return 0, errors.New("db connection is nil")
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	records, err := ReadPrompts(file)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, record := range records {
		entry := PromptLibrary{Category: record.Category, Text: record.Text}
		if err := conn.FirstOrCreate(&entry, PromptLibrary{Category: entry.Category, Text: entry.Text}).Error; err != nil {
			return inserted, fmt.Errorf("upsert prompt %q: %w", record.Text, err)
		}
		inserted++
	}
	return inserted, nil
}

// ReadPrompts parses a "category,text" CSV with a header row. Single-column
// rows are read as text in the general category.
func ReadPrompts(r io.Reader) ([]PromptRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read prompts csv: %w", err)
	}

	var records []PromptRecord
	seen := map[PromptRecord]struct{}{}
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		record := PromptRecord{Category: defaultPromptCategory}
		if len(row) >= 2 {
			if category := strings.TrimSpace(row[0]); category != "" {
				record.Category = category
			}
			record.Text = strings.TrimSpace(row[1])
		} else {
			record.Text = strings.TrimSpace(row[0])
		}
		if record.Text == "" {
			continue
		}
		if _, dup := seen[record]; dup {
			continue
		}
		seen[record] = struct{}{}
		records = append(records, record)
	}
	return records, nil
}
