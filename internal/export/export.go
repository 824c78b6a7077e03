package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"netwatch/pkg/models"
)

// ErrUnsupportedFormat is returned for formats other than json and csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ReasonSeparator joins risk reasons inside a single CSV field. A separator
// or backslash inside a reason is escaped with a backslash.
const ReasonSeparator = "|"

// Header is the CSV header row. Column order matches the Connection fields.
var Header = []string{
	"id", "processName", "pid", "protocol", "localAddr", "localPort",
	"remoteAddr", "remotePort", "state", "risk", "riskReasons", "capturedAt",
}

// Document is the JSON export shape.
type Document struct {
	Connections []models.Connection `json:"connections"`
	ExportedAt  time.Time           `json:"exported_at"`
}

// ParseFormat accepts json and csv in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Encode writes conns to w in the given format.
func Encode(w io.Writer, f Format, conns []models.Connection, exportedAt time.Time) error {
	switch f {
	case FormatJSON:
		return EncodeJSON(w, conns, exportedAt)
	case FormatCSV:
		return EncodeCSV(w, conns)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// EncodeJSON writes an indented Document.
func EncodeJSON(w io.Writer, conns []models.Connection, exportedAt time.Time) error {
	if conns == nil {
		conns = []models.Connection{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Connections: conns, ExportedAt: exportedAt.UTC()})
}

// DecodeJSON reads a Document written by EncodeJSON.
func DecodeJSON(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode json export: %w", err)
	}
	return doc, nil
}

// EncodeCSV writes a header row followed by one row per connection.
// Quoting follows RFC 4180.
func EncodeCSV(w io.Writer, conns []models.Connection) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, c := range conns {
		if err := cw.Write(record(c)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(c models.Connection) []string {
	return []string{
		c.ID,
		c.ProcessName,
		strconv.FormatInt(int64(c.PID), 10),
		c.Protocol,
		c.LocalAddr,
		strconv.FormatUint(uint64(c.LocalPort), 10),
		c.RemoteAddr,
		strconv.FormatUint(uint64(c.RemotePort), 10),
		c.State,
		c.Risk.String(),
		joinReasons(c.RiskReasons),
		c.CapturedAt.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeCSV parses rows written by EncodeCSV.
func DecodeCSV(r io.Reader) ([]models.Connection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv export: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("decode csv export: missing header row")
	}
	for i, name := range Header {
		if rows[0][i] != name {
			return nil, fmt.Errorf("decode csv export: column %d is %q, want %q", i, rows[0][i], name)
		}
	}

	conns := make([]models.Connection, 0, len(rows)-1)
	for i, row := range rows[1:] {
		c, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("decode csv export: row %d: %w", i+1, err)
		}
		conns = append(conns, c)
	}
	return conns, nil
}

func parseRecord(row []string) (models.Connection, error) {
	pid, err := strconv.ParseInt(row[2], 10, 32)
	if err != nil {
		return models.Connection{}, fmt.Errorf("pid: %w", err)
	}
	lport, err := strconv.ParseUint(row[5], 10, 16)
	if err != nil {
		return models.Connection{}, fmt.Errorf("localPort: %w", err)
	}
	rport, err := strconv.ParseUint(row[7], 10, 16)
	if err != nil {
		return models.Connection{}, fmt.Errorf("remotePort: %w", err)
	}
	risk, err := models.ParseRiskLevel(row[9])
	if err != nil {
		return models.Connection{}, err
	}
	reasons, err := splitReasons(row[10])
	if err != nil {
		return models.Connection{}, fmt.Errorf("riskReasons: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, row[11])
	if err != nil {
		return models.Connection{}, fmt.Errorf("capturedAt: %w", err)
	}
	return models.Connection{
		ID:          row[0],
		ProcessName: row[1],
		PID:         int32(pid),
		Protocol:    row[3],
		LocalAddr:   row[4],
		LocalPort:   uint16(lport),
		RemoteAddr:  row[6],
		RemotePort:  uint16(rport),
		State:       row[8],
		Risk:        risk,
		RiskReasons: reasons,
		CapturedAt:  at,
	}, nil
}

func joinReasons(reasons []string) string {
	var b strings.Builder
	for i, r := range reasons {
		if i > 0 {
			b.WriteString(ReasonSeparator)
		}
		for _, ch := range r {
			if ch == '\\' || string(ch) == ReasonSeparator {
				b.WriteByte('\\')
			}
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func splitReasons(field string) ([]string, error) {
	reasons := []string{}
	if field == "" {
		return reasons, nil
	}
	var cur strings.Builder
	escaped := false
	for _, ch := range field {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case ch == '\\':
			escaped = true
		case string(ch) == ReasonSeparator:
			reasons = append(reasons, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	if escaped {
		return nil, errors.New("dangling escape")
	}
	return append(reasons, cur.String()), nil
}

// FileName returns netwatch_connections_<unix>.<format>.
func FileName(f Format, at time.Time) string {
	return fmt.Sprintf("netwatch_connections_%d.%s", at.Unix(), f)
}

// WriteFile encodes conns into a new file under dir and returns its path.
func WriteFile(dir string, f Format, conns []models.Connection, at time.Time) (string, error) {
	if f != FormatJSON && f != FormatCSV {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(f, at))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Encode(file, f, conns, at); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}
