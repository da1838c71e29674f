package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ring-scanner/internal/types"
)

type SQLiteStorage struct {
	db           *sql.DB
	historyLimit int
}

func NewSQLiteStorage(path string, historyLimit int) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Create table
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_timestamp TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStorage{db: db, historyLimit: historyLimit}, nil
}

func (s *SQLiteStorage) Save(report *types.ScanReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO reports (scan_timestamp, data, created_at) VALUES (?, ?, ?)",
		report.ScanTimestamp, string(data), time.Now()); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	// Keep only the newest historyLimit reports
	if s.historyLimit > 0 {
		if _, err := tx.Exec(
			"DELETE FROM reports WHERE id NOT IN (SELECT id FROM reports ORDER BY id DESC LIMIT ?)",
			s.historyLimit); err != nil {
			return fmt.Errorf("trim reports: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Latest() (*types.ScanReport, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM reports ORDER BY id DESC LIMIT 1").Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query report: %w", err)
	}

	var report types.ScanReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return &report, nil
}

func (s *SQLiteStorage) History(limit int) ([]*types.ScanReport, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := s.db.Query("SELECT data FROM reports ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*types.ScanReport, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var report types.ScanReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return reports, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
