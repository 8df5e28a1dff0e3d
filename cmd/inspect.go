package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/copilot-session/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the local state database",
	Long: `Inspect the schema and contents of the local state database.

This command provides detailed information about:
  • Database schema (tables, columns, types)
  • Sample data from each table, with the token masked
  • Row counts

Examples:
  copilot-session inspect                                # Inspect the default state database
  copilot-session inspect --state-dir /tmp/state         # Inspect another state directory
  copilot-session inspect --format json --sample 5       # JSON output with 5 sample rows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dbPath string
		if len(args) > 0 {
			dbPath = args[0]
		}

		if dbPath == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths, err := internal.GetStatePaths(cfg.StateDir)
			if err != nil {
				return fmt.Errorf("failed to detect state directory: %w", err)
			}
			if !paths.StateDBExists() {
				return fmt.Errorf("no state database at %s - run `copilot-session login` first", paths.StateDBPath())
			}
			dbPath = paths.StateDBPath()
		}

		switch inspectFormat {
		case "text":
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "📊 Inspecting state database: %s\n\n", dbPath)
			return inspectDatabase(cmd.OutOrStdout(), dbPath)
		case "json":
			return inspectDatabaseJSON(cmd.OutOrStdout(), dbPath)
		default:
			return fmt.Errorf("unsupported format: %s (supported: text, json)", inspectFormat)
		}
	},
}

// TableReport is the JSON form of one inspected table
type TableReport struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

func inspectDatabase(out io.Writer, dbPath string) error {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	tables, err := getTables(db)
	if err != nil {
		return fmt.Errorf("failed to get tables: %w", err)
	}

	if len(tables) == 0 {
		_, _ = fmt.Fprintln(out, "⚠️  No tables found in database")
		return nil
	}

	_, _ = fmt.Fprintf(out, "📋 Database: %s\n", dbPath)
	_, _ = fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(tables))

	for _, tableName := range tables {
		report, err := inspectTable(db, tableName)
		if err != nil {
			_, _ = fmt.Fprintf(out, "⚠️  Error inspecting table %s: %v\n", tableName, err)
			continue
		}
		printTable(out, report)
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

func inspectDatabaseJSON(out io.Writer, dbPath string) error {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	tables, err := getTables(db)
	if err != nil {
		return fmt.Errorf("failed to get tables: %w", err)
	}

	reports := make([]*TableReport, 0, len(tables))
	for _, tableName := range tables {
		report, err := inspectTable(db, tableName)
		if err != nil {
			internal.LogWarn("Error inspecting table %s: %v", tableName, err)
			continue
		}
		reports = append(reports, report)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"database": dbPath,
		"tables":   reports,
	})
}

func getTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func inspectTable(db *sql.DB, tableName string) (*TableReport, error) {
	report := &TableReport{Name: tableName}
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&report.Rows); err != nil {
		return nil, fmt.Errorf("failed to get row count: %w", err)
	}

	columns, err := getTableSchema(db, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	report.Columns = columns

	if report.Rows > 0 && inspectSampleRows > 0 {
		report.Sample, err = sampleRows(db, tableName, columns, inspectSampleRows)
		if err != nil {
			internal.LogWarn("Error reading sample data from %s: %v", tableName, err)
		}
	}
	return report, nil
}

func printTable(out io.Writer, report *TableReport) {
	_, _ = fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	_, _ = fmt.Fprintf(out, "📦 Table: %s\n", report.Name)
	_, _ = fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	_, _ = fmt.Fprintf(out, "📊 Rows: %d\n\n", report.Rows)

	_, _ = fmt.Fprintf(out, "📐 Schema:\n")
	for _, col := range report.Columns {
		pk := ""
		if col.PrimaryKey {
			pk = " [PRIMARY KEY]"
		}
		notNull := ""
		if col.NotNull {
			notNull = " NOT NULL"
		}
		_, _ = fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
	}

	if len(report.Sample) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", len(report.Sample))
	for i, row := range report.Sample {
		_, _ = fmt.Fprintf(out, "\n  Row %d:\n", i+1)
		for _, col := range report.Columns {
			_, _ = fmt.Fprintf(out, "    %s: %s\n", col.Name, row[col.Name])
		}
	}
}

type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

func getTableSchema(db *sql.DB, tableName string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var cid int
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			continue
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk == 1
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// sampleRows reads up to limit rows as display strings. The value of the
// token row is masked.
func sampleRows(db *sql.DB, tableName string, columns []ColumnInfo, limit int) ([]map[string]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	colNames := make([]string, len(columns))
	for i, col := range columns {
		colNames[i] = col.Name
	}

	query := fmt.Sprintf("SELECT %s FROM %s LIMIT %d", strings.Join(colNames, ", "), tableName, limit)
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sample []map[string]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return sample, err
		}

		secret := tableName == "kv" && columnString(columns, values, "key") == internal.TokenKey
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			val := values[i]
			if secret && col.Name == "value" && val != nil {
				val = maskSecret(rawString(val))
			}
			row[col.Name] = displayValue(val)
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

func columnString(columns []ColumnInfo, values []interface{}, name string) string {
	for i, col := range columns {
		if col.Name == name && values[i] != nil {
			return rawString(values[i])
		}
	}
	return ""
}

func rawString(val interface{}) string {
	switch v := val.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// displayValue shortens val to one line of at most 200 bytes
func displayValue(val interface{}) string {
	if val == nil {
		return "<NULL>"
	}
	valStr := rawString(val)
	if len(valStr) > 200 {
		valStr = valStr[:200] + "..."
	}
	if strings.Contains(valStr, "\n") {
		valStr = strings.Split(valStr, "\n")[0] + "..."
	}
	return valStr
}

// maskSecret keeps the first and last four characters of s
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8) + s[len(s)-4:]
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
