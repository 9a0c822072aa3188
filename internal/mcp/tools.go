package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/repodigest/internal/orchestrator"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// GetReportSectionArgs are the arguments for the get_report_section tool.
type GetReportSectionArgs struct {
	// Repo is the owner/name slug of the repository.
	Repo string `json:"repo" jsonschema:"Repository slug in owner/name form"`

	// Section is which report section to fetch.
	Section string `json:"section" jsonschema:"Section: prs, issues, people or summary"`

	// Timeframe is the symbolic report window.
	Timeframe string `json:"timeframe,omitempty" jsonschema:"Timeframe: last_day, last_week, last_month or last_year,default=last_week"`

	// Force regenerates even when a cached section exists.
	Force bool `json:"force,omitempty" jsonschema:"Regenerate even when a cached section exists"`
}

// GetReportSectionResult is the result of the get_report_section tool.
type GetReportSectionResult struct {
	Section string          `json:"section"`
	Payload json.RawMessage `json:"payload"`
	Cached  bool            `json:"cached"`
}

func parseArgs(repo, label string,
	force bool) (orchestrator.Request, error) {

	if label == "" {
		label = string(timeframe.LastWeek)
	}
	tf, err := timeframe.Parse(label)
	if err != nil {
		return orchestrator.Request{}, err
	}

	return orchestrator.Request{
		RepoID:    repo,
		Timeframe: tf,
		Force:     force,
	}, nil
}

func (s *Server) handleGetReportSection(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetReportSectionArgs) (*mcp.CallToolResult,
	GetReportSectionResult, error) {

	section := report.Section(args.Section)
	if !report.ValidSection(section) {
		return nil, GetReportSectionResult{}, fmt.Errorf(
			"unknown section %q", args.Section,
		)
	}

	orchReq, err := parseArgs(args.Repo, args.Timeframe, args.Force)
	if err != nil {
		return nil, GetReportSectionResult{}, err
	}

	res, err := s.orch.Section(ctx, orchReq, section)
	if err != nil {
		return nil, GetReportSectionResult{}, err
	}

	return nil, GetReportSectionResult{
		Section: string(section),
		Payload: res.Payload,
		Cached:  res.FromCache,
	}, nil
}

// GetReportArgs are the arguments for the get_report tool.
type GetReportArgs struct {
	// Repo is the owner/name slug of the repository.
	Repo string `json:"repo" jsonschema:"Repository slug in owner/name form"`

	// Timeframe is the symbolic report window.
	Timeframe string `json:"timeframe,omitempty" jsonschema:"Timeframe: last_day, last_week, last_month or last_year,default=last_week"`

	// Force regenerates every section.
	Force bool `json:"force,omitempty" jsonschema:"Regenerate every section"`
}

// GetReportResult is the result of the get_report tool.
type GetReportResult struct {
	Report *report.Report `json:"report"`

	// Failed lists the sections that could not be produced with their
	// reasons. Sections absent from both the report and this map did
	// not exist in the window.
	Failed map[string]string `json:"failed,omitempty"`
}

func (s *Server) handleGetReport(ctx context.Context,
	req *mcp.CallToolRequest, args GetReportArgs) (*mcp.CallToolResult,
	GetReportResult, error) {

	orchReq, err := parseArgs(args.Repo, args.Timeframe, args.Force)
	if err != nil {
		return nil, GetReportResult{}, err
	}

	res := s.orch.Report(ctx, orchReq)

	failed := make(map[string]string, len(res.Report.Failed))
	for section, ferr := range res.Report.Failed {
		failed[string(section)] = ferr.Error()
	}
	if len(failed) == 0 {
		failed = nil
	}

	return nil, GetReportResult{
		Report: res.Report,
		Failed: failed,
	}, nil
}
