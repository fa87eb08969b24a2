// Package silver refreshes the curated tables for one athlete from bronze,
// using a fixed set of embedded SQL templates (one per target table) executed
// as delete-then-insert.
package silver

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

//go:embed sql/*.sql
var templates embed.FS

// params are the only values a template body may reference.
type params struct {
	Schema    string
	AthleteID string
}

// Engine refreshes the silver layer for one athlete. With Atomic set (the
// default wiring), each template's delete and insert run inside a single
// multi-statement transaction; otherwise the two statements run separately
// and an interruption between them can leave the athlete's curated rows
// absent until the next run.
type Engine struct {
	Warehouse shared.Warehouse
	Env       string
	Atomic    bool
	Logger    *slog.Logger
}

// Run executes every template for the athlete. A failed template is logged
// and skipped; the remaining templates still run.
func (e *Engine) Run(ctx context.Context, athleteID string, source types.DataSource) error {
	names, err := templateNames()
	if err != nil {
		return err
	}

	p := params{
		Schema:    shared.BronzeDataset(e.Env, source),
		AthleteID: athleteID,
	}

	for _, name := range names {
		target := shared.SilverDataset(e.Env, source) + "." + strings.TrimSuffix(name, ".sql")
		if err := e.runTemplate(ctx, name, target, p); err != nil {
			e.Logger.Error("Silver template failed", "template", name, "target", target, "error", err)
			continue
		}
		e.Logger.Info("Refreshed silver table", "target", target, "athlete_id", athleteID)
	}
	return nil
}

func (e *Engine) runTemplate(ctx context.Context, name, target string, p params) error {
	body, err := render(name, p)
	if err != nil {
		return err
	}
	if err := ValidateSelect(body); err != nil {
		return fmt.Errorf("template %s rejected: %w", name, err)
	}

	deleteStmt := fmt.Sprintf("DELETE FROM %s WHERE athlete_id = '%s'", target, p.AthleteID)
	insertStmt := fmt.Sprintf("INSERT INTO %s\n%s", target, body)

	if e.Atomic {
		return e.Warehouse.RunAll(ctx, []string{deleteStmt, insertStmt})
	}
	if err := e.Warehouse.Run(ctx, deleteStmt); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := e.Warehouse.Run(ctx, insertStmt); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func templateNames() ([]string, error) {
	entries, err := templates.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("read silver templates: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func render(name string, p params) (string, error) {
	raw, err := templates.ReadFile("sql/" + name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, p); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// forbiddenKeywords are statement starters that must never appear in a
// template body outside of string literals.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "CALL", "EXECUTE",
}

// ValidateSelect enforces that a rendered template body is a single SELECT
// statement (optionally introduced by a WITH clause), guarding against
// arbitrary statement injection through template files.
func ValidateSelect(body string) error {
	stripped := stripLiteralsAndComments(body)

	if i := strings.IndexByte(stripped, ';'); i >= 0 && strings.TrimSpace(stripped[i+1:]) != "" {
		return fmt.Errorf("multiple statements are not allowed")
	}
	stripped = strings.ReplaceAll(stripped, ";", " ")

	upper := strings.ToUpper(stripped)
	fields := strings.Fields(upper)
	if len(fields) == 0 {
		return fmt.Errorf("empty statement")
	}
	if fields[0] != "SELECT" && fields[0] != "WITH" {
		return fmt.Errorf("only SELECT statements are allowed")
	}
	for _, word := range fields {
		for _, kw := range forbiddenKeywords {
			if word == kw {
				return fmt.Errorf("keyword %s is not allowed in templates", kw)
			}
		}
	}
	return nil
}

// stripLiteralsAndComments blanks out quoted strings, backtick identifiers
// and SQL comments so keyword scanning cannot be fooled by literal text.
func stripLiteralsAndComments(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\'' || s[i] == '"' || s[i] == '`':
			quote := s[i]
			i++
			for i < len(s) && s[i] != quote {
				i++
			}
			if i < len(s) {
				i++
			}
			b.WriteByte(' ')
		case strings.HasPrefix(s[i:], "--"):
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case strings.HasPrefix(s[i:], "/*"):
			i += 2
			for i < len(s) && !strings.HasPrefix(s[i:], "*/") {
				i++
			}
			if i < len(s) {
				i += 2
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}
