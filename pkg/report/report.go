// Package report decodes the analysis reports fed to the tracking engine.
//
// A report is a JSON document, optionally lz4-framed, listing for each file
// its source lines, the issues raised on it and the blame of its lines. It is
// validated against an embedded JSON schema before decoding.
package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issuetracking"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/scm"
)

// ErrInvalidReport is returned for reports that do not match the schema or
// reference lines outside their file.
var ErrInvalidReport = errors.New("invalid report")

// maxSchemaErrors bounds the validation errors quoted in an error message.
const maxSchemaErrors = 5

// lz4Suffix marks compressed report files.
const lz4Suffix = ".lz4"

//go:embed schema.json
var schemaJSON []byte

// Report is a decoded analysis report.
type Report struct {
	Project  string
	Revision string
	Files    []issuetracking.SourceFile
	SCM      scm.MapProvider
}

type reportDoc struct {
	Project  string    `json:"project"`
	Revision string    `json:"revision"`
	Files    []fileDoc `json:"files"`
}

type fileDoc struct {
	Path       string                  `json:"path"`
	Lines      []string                `json:"lines"`
	Issues     []issueDoc              `json:"issues"`
	Changesets map[string]changesetDoc `json:"changesets"`
}

type issueDoc struct {
	Rule       string            `json:"rule"`
	Line       int               `json:"line"`
	Message    string            `json:"message"`
	Severity   string            `json:"severity"`
	Type       string            `json:"type"`
	Gap        *float64          `json:"gap"`
	Effort     *int64            `json:"effort"`
	Tags       []string          `json:"tags"`
	Attributes map[string]string `json:"attributes"`
	TextRange  *issue.TextRange  `json:"text_range"`
	Locations  []issue.Location  `json:"locations"`
}

type changesetDoc struct {
	Author   string    `json:"author"`
	Date     time.Time `json:"date"`
	Revision string    `json:"revision"`
}

// Open decodes the report at path, decompressing it when the name ends with ".lz4".
func Open(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, lz4Suffix) {
		r = lz4.NewReader(f)
	}

	rep, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return rep, nil
}

// Decode validates and decodes a JSON report.
func Decode(r io.Reader) (*Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	err = validate(data)
	if err != nil {
		return nil, err
	}

	var doc reportDoc

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	err = dec.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	rep := &Report{
		Project:  doc.Project,
		Revision: doc.Revision,
		Files:    make([]issuetracking.SourceFile, 0, len(doc.Files)),
		SCM:      make(scm.MapProvider),
	}

	for _, fd := range doc.Files {
		sf, convErr := fd.sourceFile()
		if convErr != nil {
			return nil, convErr
		}

		rep.Files = append(rep.Files, sf)

		if len(fd.Changesets) > 0 {
			info, infoErr := fd.blame()
			if infoErr != nil {
				return nil, infoErr
			}

			rep.SCM[fd.Path] = info
		}
	}

	return rep, nil
}

func validate(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	msgs := make([]string, 0, min(len(errs), maxSchemaErrors))

	for _, e := range errs[:min(len(errs), maxSchemaErrors)] {
		msgs = append(msgs, e.String())
	}

	if len(errs) > maxSchemaErrors {
		msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-maxSchemaErrors))
	}

	return fmt.Errorf("%w: %s", ErrInvalidReport, strings.Join(msgs, "; "))
}

func (fd fileDoc) sourceFile() (issuetracking.SourceFile, error) {
	sf := issuetracking.SourceFile{
		Path:   fd.Path,
		Lines:  fd.Lines,
		Issues: make([]*issue.Issue, 0, len(fd.Issues)),
	}

	for idx, d := range fd.Issues {
		key, err := rules.ParseKey(d.Rule)
		if err != nil {
			return sf, fmt.Errorf("%w: %s issue %d: %w", ErrInvalidReport, fd.Path, idx, err)
		}

		if d.Line > len(fd.Lines) {
			return sf, fmt.Errorf("%w: %s issue %d: line %d beyond end of file (%d lines)",
				ErrInvalidReport, fd.Path, idx, d.Line, len(fd.Lines))
		}

		sf.Issues = append(sf.Issues, &issue.Issue{
			RuleKey:    key,
			Path:       fd.Path,
			Line:       d.Line,
			Message:    d.Message,
			Severity:   issue.Severity(d.Severity),
			Type:       issue.Type(d.Type),
			Gap:        d.Gap,
			Effort:     d.Effort,
			Tags:       d.Tags,
			Attributes: d.Attributes,
			TextRange:  d.TextRange,
			Locations:  d.Locations,
		})
	}

	return sf, nil
}

func (fd fileDoc) blame() (*scm.Info, error) {
	byLine := make(map[int]scm.Changeset, len(fd.Changesets))

	for k, cs := range fd.Changesets {
		line, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s changeset line %q: %w", ErrInvalidReport, fd.Path, k, err)
		}

		byLine[line] = scm.Changeset{Author: cs.Author, Date: cs.Date.UTC(), Revision: cs.Revision}
	}

	return scm.NewInfo(byLine), nil
}
