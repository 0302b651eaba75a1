package export

// Table is column-ordered tabular content ready for rendering. Rows must be
// the same length as Columns; renderers pad short rows with empty cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t Table) cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
