package connect

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// IndexHeader is the index column name written for matrix files
const IndexHeader = "puID"

// Matrix is a square connectivity table. Entry (i, j) is the connectivity
// strength from unit IDs[i] to unit IDs[j].
type Matrix struct {
	IDs  []string
	Data *mat.Dense
}

// NewMatrix wraps row-major values for the given IDs
func NewMatrix(ids []string, values []float64) (*Matrix, error) {
	n := len(ids)
	if n == 0 {
		return nil, fmt.Errorf("empty connectivity matrix")
	}
	if len(values) != n*n {
		return nil, fmt.Errorf("%w: %d ids but %d values", ErrMatrixNotSquare, n, len(values))
	}
	return &Matrix{
		IDs:  append([]string(nil), ids...),
		Data: mat.NewDense(n, n, append([]float64(nil), values...)),
	}, nil
}

// Size returns the number of units
func (m *Matrix) Size() int {
	return len(m.IDs)
}

// At returns entry (i, j)
func (m *Matrix) At(i, j int) float64 {
	return m.Data.At(i, j)
}

// Index returns the position of a unit ID, or -1
func (m *Matrix) Index(id string) int {
	for i, v := range m.IDs {
		if v == id {
			return i
		}
	}
	return -1
}

// ReadMatrixCSV reads a connectivity matrix whose first column holds row IDs
// and whose header row holds column IDs.
func ReadMatrixCSV(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening matrix file: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := ParseMatrixCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseMatrixCSV parses matrix CSV content from r
func ParseMatrixCSV(r io.Reader) (*Matrix, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing matrix CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("empty connectivity matrix")
	}

	header := records[0]
	colIDs := make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		colIDs = append(colIDs, strings.TrimSpace(h))
	}

	rows := records[1:]
	if len(rows) != len(colIDs) {
		return nil, fmt.Errorf("%w: %d rows, %d columns", ErrMatrixNotSquare, len(rows), len(colIDs))
	}

	n := len(colIDs)
	values := make([]float64, 0, n*n)
	for i, row := range rows {
		rowID := strings.TrimSpace(row[0])
		if rowID != colIDs[i] {
			return nil, fmt.Errorf("row %d id %q does not match column id %q", i+1, rowID, colIDs[i])
		}
		for j, cell := range row[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %s column %s: invalid number %q", rowID, colIDs[j], cell)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %s column %s: non-finite value %q", rowID, colIDs[j], cell)
			}
			values = append(values, v)
		}
	}

	return NewMatrix(colIDs, values)
}

// WriteMatrixCSV writes m in the layout read by ReadMatrixCSV
func WriteMatrixCSV(path string, m *Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating matrix file: %w", err)
	}

	if err := EncodeMatrixCSV(f, m); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// EncodeMatrixCSV writes m as CSV to w
func EncodeMatrixCSV(w io.Writer, m *Matrix) error {
	cw := csv.NewWriter(w)

	header := append([]string{IndexHeader}, m.IDs...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing matrix header: %w", err)
	}

	n := m.Size()
	for i := 0; i < n; i++ {
		row := make([]string, 0, n+1)
		row = append(row, m.IDs[i])
		for j := 0; j < n; j++ {
			row = append(row, strconv.FormatFloat(m.At(i, j), 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing matrix row %s: %w", m.IDs[i], err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Melt unpivots the matrix into a boundary table. Rows are emitted column by
// column: every source unit for the first destination, then the second.
func (m *Matrix) Melt() []BoundaryRow {
	n := m.Size()
	rows := make([]BoundaryRow, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			rows = append(rows, BoundaryRow{
				ID1:      m.IDs[i],
				ID2:      m.IDs[j],
				Boundary: m.At(i, j),
			})
		}
	}
	return rows
}

// WriteBoundaryCSV writes a boundary table with an id1,id2,boundary header
func WriteBoundaryCSV(w io.Writer, rows []BoundaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id1", "id2", "boundary"}); err != nil {
		return fmt.Errorf("writing boundary header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.ID1, r.ID2, strconv.FormatFloat(r.Boundary, 'g', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing boundary row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
