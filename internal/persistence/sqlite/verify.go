// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// Verification modes.
const (
	VerifyQuick = "quick"
	VerifyFull  = "full"
)

// VerifyIntegrity checks the database file for structural corruption.
// Mode VerifyQuick runs PRAGMA quick_check, VerifyFull runs PRAGMA
// integrity_check. A healthy database yields nil issues.
func VerifyIntegrity(ctx context.Context, path string, mode string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("verify: open database: %w", err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check;"
	if mode == VerifyFull {
		pragma = "PRAGMA integrity_check;"
	}

	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		// Corruption in the header or schema pages surfaces here.
		if isCorruption(err) {
			return []string{err.Error()}, nil
		}
		return nil, fmt.Errorf("verify: integrity pragma: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("verify: scan result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		if isCorruption(err) {
			return append(results, err.Error()), nil
		}
		return nil, fmt.Errorf("verify: read results: %w", err)
	}

	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}

func isCorruption(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database")
}
