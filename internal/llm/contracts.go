package llm

import (
	"context"

	"github.com/finparse/statements/internal/statement"
)

// ExtractRequest carries one PDF through extraction.
type ExtractRequest struct {
	FileName    string
	PDF         []byte
	CompanyHint string // optional; steers company_name when the cover page is ambiguous
}

// StatementExtractor is the interface the batch orchestrator depends on.
// The raw JSON returned alongside the normalized data is the validated model
// output, kept for persistence and debugging.
type StatementExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (statement.FinancialData, []byte /*rawJSON*/, error)
}
