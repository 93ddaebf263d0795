package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the chat database schema and contents",
	Long: `Inspect the sqlite database the chat history is kept in.

This command shows:
  • Tables and their columns
  • Row counts
  • Sample rows, with stored transcripts summarized

Examples:
  chatstream inspect                          # Inspect the configured store
  chatstream inspect /path/to/chats.db        # Inspect a specific database
  chatstream inspect --format json --sample 5 # JSON output with 5 sample rows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := internal.SQLiteStorePath(cfg.DataDir)
		if len(args) > 0 {
			dbPath = args[0]
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("no chat database at %s: %w", dbPath, err)
		}

		db, err := internal.OpenDatabase(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		report, err := inspectDatabase(db, inspectSampleRows)
		if err != nil {
			return err
		}
		report.Path = dbPath

		out := cmd.OutOrStdout()
		switch inspectFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		case "text":
			printReport(out, report)
			return nil
		default:
			return fmt.Errorf("unsupported format %q (supported: text, json)", inspectFormat)
		}
	},
}

// DatabaseReport describes a database for the inspect command
type DatabaseReport struct {
	Path   string        `json:"path"`
	Tables []TableReport `json:"tables"`
}

// TableReport describes one table
type TableReport struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

func inspectDatabase(db *sql.DB, sampleRows int) (*DatabaseReport, error) {
	tables, err := getTables(db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	report := &DatabaseReport{}
	for _, name := range tables {
		table, err := inspectTable(db, name, sampleRows)
		if err != nil {
			internal.LogWarn("Error inspecting table %s: %v", name, err)
			continue
		}
		report.Tables = append(report.Tables, *table)
	}
	return report, nil
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

func inspectTable(db *sql.DB, tableName string, sampleRows int) (*TableReport, error) {
	table := &TableReport{Name: tableName}

	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", tableName)).Scan(&table.Rows); err != nil {
		return nil, fmt.Errorf("failed to get row count: %w", err)
	}

	columns, err := getTableSchema(db, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	table.Columns = columns

	if table.Rows > 0 && sampleRows > 0 {
		sample, err := sampleData(db, tableName, columns, sampleRows)
		if err != nil {
			return nil, fmt.Errorf("failed to read sample rows: %w", err)
		}
		table.Sample = sample
	}
	return table, nil
}

func getTableSchema(db *sql.DB, tableName string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", tableName))
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

func sampleData(db *sql.DB, tableName string, columns []ColumnInfo, limit int) ([]map[string]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	colNames := make([]string, len(columns))
	for i, col := range columns {
		colNames[i] = fmt.Sprintf("%q", col.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(colNames, ", "), tableName, limit)
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
			return nil, err
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			row[col.Name] = formatValue(col.Name, values[i])
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

// formatValue shortens a column value; stored transcripts become a role summary
func formatValue(column string, val interface{}) string {
	if val == nil {
		return "<NULL>"
	}
	var valStr string
	switch v := val.(type) {
	case []byte:
		valStr = string(v)
	default:
		valStr = fmt.Sprintf("%v", v)
	}

	if column == "messages" {
		var messages []internal.ChatMessage
		if json.Unmarshal([]byte(valStr), &messages) == nil {
			return summarizeTranscript(messages)
		}
	}

	if strings.Contains(valStr, "\n") {
		valStr = strings.Split(valStr, "\n")[0] + "..."
	}
	return truncate(valStr, 200)
}

func summarizeTranscript(messages []internal.ChatMessage) string {
	counts := map[internal.Role]int{}
	for _, m := range messages {
		counts[m.Role]++
	}
	return fmt.Sprintf("%d message(s): %d user, %d assistant",
		len(messages), counts[internal.RoleUser], counts[internal.RoleAssistant])
}

func printReport(out io.Writer, report *DatabaseReport) {
	fmt.Fprintf(out, "📋 Database: %s\n", report.Path)
	if len(report.Tables) == 0 {
		fmt.Fprintln(out, "⚠️  No tables found in database")
		return
	}
	fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(report.Tables))

	for _, table := range report.Tables {
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📦 Table: %s\n", table.Name)
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📊 Rows: %d\n\n", table.Rows)

		fmt.Fprintf(out, "📐 Schema:\n")
		for _, col := range table.Columns {
			pk := ""
			if col.PrimaryKey {
				pk = " [PRIMARY KEY]"
			}
			notNull := ""
			if col.NotNull {
				notNull = " NOT NULL"
			}
			fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
		}
		fmt.Fprintln(out)

		if len(table.Sample) > 0 {
			fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", len(table.Sample))
			for i, row := range table.Sample {
				fmt.Fprintf(out, "\n  Row %d:\n", i+1)
				for _, col := range table.Columns {
					fmt.Fprintf(out, "    %s: %s\n", col.Name, row[col.Name])
				}
			}
			fmt.Fprintln(out)
		}
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
