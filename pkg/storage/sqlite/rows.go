package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
)

const issueColumns = `kee, rule_key, project_key, branch, path, line, text_range, locations, checksum,
	message, severity, manual_severity, type, status, resolution, assignee, author, gap, effort,
	tags, attributes, from_external, on_disabled_rule, created_at, updated_at, closed_at`

const (
	changeTypeDiff    = "diff"
	changeTypeComment = "comment"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(sc scanner) (*issue.Issue, error) {
	var (
		iss                               issue.Issue
		ruleKey, tags                     string
		severity, typ, status, resolution string
		textRange, locations, attrs       sql.NullString
		gap                               sql.NullFloat64
		effort, closedAt                  sql.NullInt64
		createdAt, updatedAt              int64
	)

	err := sc.Scan(&iss.Key, &ruleKey, &iss.ProjectKey, &iss.Branch, &iss.Path, &iss.Line,
		&textRange, &locations, &iss.Checksum, &iss.Message, &severity, &iss.ManualSeverity, &typ,
		&status, &resolution, &iss.Assignee, &iss.Author, &gap, &effort, &tags, &attrs,
		&iss.FromExternalRuleEngine, &iss.OnDisabledRule, &createdAt, &updatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	iss.RuleKey = rules.Key(ruleKey)
	iss.Severity = issue.Severity(severity)
	iss.Type = issue.Type(typ)
	iss.Status = issue.Status(status)
	iss.Resolution = issue.Resolution(resolution)
	iss.CreationDate = fromMillis(createdAt)
	iss.UpdateDate = fromMillis(updatedAt)

	if closedAt.Valid {
		iss.CloseDate = fromMillis(closedAt.Int64)
	}

	if gap.Valid {
		iss.Gap = &gap.Float64
	}

	if effort.Valid {
		iss.Effort = &effort.Int64
	}

	if tags != "" {
		iss.Tags = strings.Split(tags, ",")
	}

	err = unmarshalNullable(textRange, &iss.TextRange)
	if err == nil {
		err = unmarshalNullable(locations, &iss.Locations)
	}

	if err == nil {
		err = unmarshalNullable(attrs, &iss.Attributes)
	}

	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", iss.Key, err)
	}

	return &iss, nil
}

func unmarshalNullable(src sql.NullString, dst any) error {
	if !src.Valid {
		return nil
	}

	return json.Unmarshal([]byte(src.String), dst)
}

func marshalNullable(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(b), Valid: true}, nil
}

// issueArgs returns the values of issueColumns in order.
func issueArgs(iss *issue.Issue) ([]any, error) {
	textRange, err := marshalNullable(iss.TextRange, iss.TextRange == nil)
	if err != nil {
		return nil, err
	}

	locations, err := marshalNullable(iss.Locations, len(iss.Locations) == 0)
	if err != nil {
		return nil, err
	}

	attrs, err := marshalNullable(iss.Attributes, len(iss.Attributes) == 0)
	if err != nil {
		return nil, err
	}

	var (
		gap      sql.NullFloat64
		effort   sql.NullInt64
		closedAt sql.NullInt64
	)

	if iss.Gap != nil {
		gap = sql.NullFloat64{Float64: *iss.Gap, Valid: true}
	}

	if iss.Effort != nil {
		effort = sql.NullInt64{Int64: *iss.Effort, Valid: true}
	}

	if !iss.CloseDate.IsZero() {
		closedAt = sql.NullInt64{Int64: millis(iss.CloseDate), Valid: true}
	}

	return []any{
		iss.Key, iss.RuleKey.String(), iss.ProjectKey, iss.Branch, iss.Path, iss.Line,
		textRange, locations, iss.Checksum, iss.Message, string(iss.Severity), iss.ManualSeverity,
		string(iss.Type), string(iss.Status), string(iss.Resolution), iss.Assignee, iss.Author,
		gap, effort, strings.Join(iss.Tags, ","), attrs, iss.FromExternalRuleEngine,
		iss.OnDisabledRule, millis(iss.CreationDate), millis(iss.UpdateDate), closedAt,
	}, nil
}

func insertIssue(ctx context.Context, q querier, iss *issue.Issue, technical time.Time) error {
	args, err := issueArgs(iss)
	if err != nil {
		return fmt.Errorf("encode issue %s: %w", iss.Key, err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`, technical_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(args, millis(technical))...)
	if err != nil {
		return fmt.Errorf("insert issue %s: %w", iss.Key, err)
	}

	return nil
}

const updateIssueSQL = `UPDATE issues SET
	rule_key = ?, project_key = ?, branch = ?, path = ?, line = ?, text_range = ?, locations = ?,
	checksum = ?, message = ?, severity = ?, manual_severity = ?, type = ?, status = ?,
	resolution = ?, assignee = ?, author = ?, gap = ?, effort = ?, tags = ?, attributes = ?,
	from_external = ?, on_disabled_rule = ?, created_at = ?, updated_at = ?, closed_at = ?,
	technical_updated_at = ?
	WHERE kee = ?`

// updateIssue rewrites a row. With a non-zero selectedAt the row is only
// written if it was not modified after that instant; the result reports
// whether a row was written.
func updateIssue(ctx context.Context, q querier, iss *issue.Issue, technical, selectedAt time.Time) (bool, error) {
	args, err := issueArgs(iss)
	if err != nil {
		return false, fmt.Errorf("encode issue %s: %w", iss.Key, err)
	}

	query := updateIssueSQL
	args = append(args[1:], millis(technical), iss.Key)

	if !selectedAt.IsZero() {
		query += ` AND technical_updated_at <= ?`
		args = append(args, millis(selectedAt))
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update issue %s: %w", iss.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update issue %s: %w", iss.Key, err)
	}

	return n > 0, nil
}

// writeLog stores the change log and comments. Entries already stored are kept as is.
func writeLog(ctx context.Context, q querier, iss *issue.Issue) error {
	for seq, ch := range iss.Changes {
		data, err := json.Marshal(ch.Diffs)
		if err != nil {
			return fmt.Errorf("encode change %s: %w", ch.Key, err)
		}

		_, err = q.ExecContext(ctx,
			`INSERT OR IGNORE INTO issue_changes
			 (kee, issue_key, change_type, user_login, change_data, created_at, updated_at, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ch.Key, iss.Key, changeTypeDiff, ch.User, string(data),
			millis(ch.CreationDate), millis(ch.CreationDate), seq)
		if err != nil {
			return fmt.Errorf("insert change of %s: %w", iss.Key, err)
		}
	}

	for seq, c := range iss.Comments {
		_, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO issue_changes
			 (kee, issue_key, change_type, user_login, change_data, created_at, updated_at, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Key, iss.Key, changeTypeComment, c.User, c.Markdown,
			millis(c.CreatedAt), millis(c.UpdatedAt), seq)
		if err != nil {
			return fmt.Errorf("insert comment of %s: %w", iss.Key, err)
		}
	}

	return nil
}

// readLog attaches the stored change log and comments.
func readLog(ctx context.Context, q querier, iss *issue.Issue) error {
	rows, err := q.QueryContext(ctx,
		`SELECT kee, change_type, user_login, change_data, created_at, updated_at
		 FROM issue_changes WHERE issue_key = ? ORDER BY change_type, seq`, iss.Key)
	if err != nil {
		return fmt.Errorf("load changes of %s: %w", iss.Key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, kind, user, data string
			created, updated      int64
		)

		err = rows.Scan(&key, &kind, &user, &data, &created, &updated)
		if err != nil {
			return fmt.Errorf("scan change of %s: %w", iss.Key, err)
		}

		switch kind {
		case changeTypeComment:
			iss.AddComment(issue.Comment{
				Key: key, IssueKey: iss.Key, User: user, Markdown: data,
				CreatedAt: fromMillis(created), UpdatedAt: fromMillis(updated),
			})
		default:
			ch := issue.FieldDiffs{Key: key, IssueKey: iss.Key, User: user, CreationDate: fromMillis(created)}

			err = json.Unmarshal([]byte(data), &ch.Diffs)
			if err != nil {
				return fmt.Errorf("decode change %s: %w", key, err)
			}

			iss.AddChange(ch)
		}
	}

	return rows.Err()
}

// selectIssues runs a query over issueColumns and loads each issue's log.
func selectIssues(ctx context.Context, q querier, selectedAt time.Time, where string, args ...any) ([]*issue.Issue, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+prefixed(issueColumns)+` FROM issues i `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select issues: %w", err)
	}

	var out []*issue.Issue

	for rows.Next() {
		iss, scanErr := scanIssue(rows)
		if scanErr != nil {
			rows.Close()

			return nil, fmt.Errorf("scan issue: %w", scanErr)
		}

		iss.SelectedAt = selectedAt
		out = append(out, iss)
	}

	err = rows.Err()
	rows.Close()

	if err != nil {
		return nil, fmt.Errorf("select issues: %w", err)
	}

	for _, iss := range out {
		err = readLog(ctx, q, iss)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func prefixed(columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = "i." + strings.TrimSpace(p)
	}

	return strings.Join(parts, ", ")
}
