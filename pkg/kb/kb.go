// Package kb retrieves supporting passages from an Amazon Bedrock Knowledge
// Base and composes them into prompt context. Retrieval is best-effort: when
// the knowledge base is unreachable the bot answers without it.
package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"communitybot/pkg/logx"
)

// DefaultMaxResults is how many passages a query returns unless overridden.
const DefaultMaxResults = 5

// retrieveAPI is the subset of the Bedrock agent runtime client we use.
type retrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// Result is one retrieved passage.
type Result struct {
	Content string
	Source  string
	Score   float64
}

// Retriever queries a single knowledge base.
type Retriever struct {
	api             retrieveAPI
	knowledgeBaseID string
	maxResults      int
	logger          *logx.Logger
}

// NewRetriever creates a retriever for the given knowledge base ID.
// maxResults of zero uses DefaultMaxResults.
func NewRetriever(api *bedrockagentruntime.Client, knowledgeBaseID string, maxResults int) *Retriever {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Retriever{
		api:             api,
		knowledgeBaseID: knowledgeBaseID,
		maxResults:      maxResults,
		logger:          logx.NewLogger("kb"),
	}
}

// Retrieve runs a vector search against the knowledge base.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	out, err := r.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(r.knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(int32(r.maxResults)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge base retrieve failed: %w", err)
	}

	results := make([]Result, 0, len(out.RetrievalResults))
	for i := range out.RetrievalResults {
		rr := &out.RetrievalResults[i]
		if rr.Content == nil || aws.ToString(rr.Content.Text) == "" {
			continue
		}
		res := Result{Content: aws.ToString(rr.Content.Text)}
		if rr.Score != nil {
			res.Score = *rr.Score
		}
		if rr.Location != nil && rr.Location.S3Location != nil {
			res.Source = aws.ToString(rr.Location.S3Location.Uri)
		}
		results = append(results, res)
	}

	r.logger.Debug("retrieved %d passages for query of %d chars", len(results), len(query))
	return results, nil
}

// Compose formats retrieved passages as a prompt context block. It returns
// the empty string when there is nothing usable so callers can skip the
// section entirely.
func Compose(results []Result) string {
	var passages []string
	for _, r := range results {
		text := strings.TrimSpace(r.Content)
		if text == "" {
			continue
		}
		if r.Source != "" {
			text += fmt.Sprintf("\n(Source: %s)", r.Source)
		}
		passages = append(passages, text)
	}
	if len(passages) == 0 {
		return ""
	}
	return "[Relevant Knowledge]\n" + strings.Join(passages, "\n\n")
}

// Augment appends knowledge context to a user question. When the context is
// empty the question passes through untouched.
func Augment(question string, results []Result) string {
	knowledge := Compose(results)
	if knowledge == "" {
		return question
	}
	return knowledge + "\n\n[User Message]\n" + question
}
