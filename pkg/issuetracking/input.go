package issuetracking

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
)

// issueInput is the tracking input of one file on one side.
type issueInput = tracking.Input[*issue.Issue]

// inputFactory builds tracking inputs for one file. Stored fingerprints are
// read once per branch and file.
type inputFactory struct {
	loader    storage.Loader
	halfBlock int
}

// raw stamps every raw issue with the hash of its line and wraps them.
func (f inputFactory) raw(lines *fingerprint.LineHashSequence, raws []*issue.Issue) issueInput {
	for _, r := range raws {
		r.Checksum = lines.HashForLine(r.Line)
	}

	return tracking.NewInputWithBlockSize(lines, raws, f.halfBlock)
}

// subset keeps the fingerprints of in with fewer issues.
func (f inputFactory) subset(in issueInput, raws []*issue.Issue) issueInput {
	return tracking.NewInputWithBlockSize(in.LineHashes(), raws, f.halfBlock)
}

// open loads the open issues of a file on a branch along with the
// fingerprint stored by the last analysis of that branch.
func (f inputFactory) open(ctx context.Context, branchName, path string) (issueInput, error) {
	issues, err := f.loader.OpenIssues(ctx, branchName, path)
	if err != nil {
		return nil, fmt.Errorf("load open issues of %s on %s: %w", path, branchName, err)
	}

	lines, err := f.storedLines(ctx, branchName, path)
	if err != nil {
		return nil, err
	}

	return tracking.NewInputWithBlockSize(lines, issues, f.halfBlock), nil
}

func (f inputFactory) storedLines(ctx context.Context, branchName, path string) (*fingerprint.LineHashSequence, error) {
	hashes, ok, err := f.loader.LineHashes(ctx, branchName, path)
	if err != nil {
		return nil, fmt.Errorf("load line hashes of %s on %s: %w", path, branchName, err)
	}

	if !ok {
		return nil, nil //nolint:nilnil // the file was never analyzed on this branch.
	}

	return fingerprint.FromHashes(hashes), nil
}
