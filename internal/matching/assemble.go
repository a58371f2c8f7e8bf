package matching

import (
	"fmt"
	"strconv"

	"github.com/uniframe-io/uniframe-backend/internal/dataset"
)

const (
	// noMatchRow marks queries for which no ground-truth candidate cleared
	// the threshold. The sentinel keeps every query visible in the output.
	noMatchRow  = -1
	noMatchName = "N/A"
)

// AssembleResult joins the candidate lists back onto the query names and the
// requested ground-truth columns. Every query contributes at least one output
// row; queries without a match get the sentinel row. Scores are rendered with
// four decimals.
func AssembleResult(queries []string, gt *dataset.Table, searchKey string, selectedCols []string, candidates [][]Candidate) (*dataset.Table, error) {
	keyIdx := gt.ColumnIndex(searchKey)
	if keyIdx < 0 {
		return nil, fmt.Errorf("search key column %q not in ground truth", searchKey)
	}
	selIdx := make([]int, len(selectedCols))
	for i, col := range selectedCols {
		idx := gt.ColumnIndex(col)
		if idx < 0 {
			return nil, fmt.Errorf("selected column %q not in ground truth", col)
		}
		selIdx[i] = idx
	}

	columns := append([]string{"nm_name", "gt_row_no", "matched_name", "score"}, selectedCols...)
	rows := make([][]string, 0, len(queries))
	for qi, name := range queries {
		if len(candidates[qi]) == 0 {
			row := []string{name, strconv.Itoa(noMatchRow), noMatchName, formatScore(0)}
			for range selIdx {
				row = append(row, noMatchName)
			}
			rows = append(rows, row)
			continue
		}
		for _, c := range candidates[qi] {
			row := []string{
				name,
				strconv.Itoa(c.Row),
				gt.Rows[c.Row][keyIdx],
				formatScore(c.Score),
			}
			for _, idx := range selIdx {
				row = append(row, gt.Rows[c.Row][idx])
			}
			rows = append(rows, row)
		}
	}
	return &dataset.Table{Columns: columns, Rows: rows}, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 4, 64)
}
