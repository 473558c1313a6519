package answer

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/document"
	"github.com/fyrsmithlabs/lectern/internal/retriever"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

var tracer = otel.Tracer("lectern.answer")

// systemPrompt frames the model as a teaching assistant that answers only
// from provided course material.
const systemPrompt = `You are an expert teaching assistant for a learning portal. Your role is to answer student questions based ONLY on the provided course material (transcripts and documents).

Rules:
- Answer precisely and clearly using only the context given below. Do not add information that is not in the context.
- Use a structured, educational tone suitable for students (clear explanations, step-by-step when helpful).
- If the context does not contain enough information to answer the question, say so clearly and suggest what topic to review.
- Keep answers focused and concise but complete enough for learning.
- You may cite the source (e.g. "From the chapter on Motion...") when it helps clarity.`

// Messages for empty retrievals. Surfaced as NoMaterialError so callers can
// report them without ever invoking the generator on empty grounding.
const (
	noMaterialMessage = "No relevant course material found. Please make sure videos or documents have been uploaded and try rephrasing your question."

	noMaterialForVideoFormat = "No relevant course material found for video_id '%s'. Make sure the video was uploaded with this video_id and try rephrasing your question."
)

// NoMaterialError indicates retrieval found nothing to ground an answer on.
// An empty index is a normal state for a fresh deployment, not a pipeline
// failure.
type NoMaterialError struct {
	// VideoID is set when the retrieval was scoped to one video.
	VideoID string
}

func (e *NoMaterialError) Error() string {
	if e.VideoID != "" {
		return fmt.Sprintf(noMaterialForVideoFormat, e.VideoID)
	}
	return noMaterialMessage
}

// Passage is one retrieved chunk included in an answer.
type Passage struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float32           `json:"distance"`
}

// Answer is a generated answer with the passages that grounded it.
type Answer struct {
	Answer   string    `json:"answer"`
	Passages []Passage `json:"passages_used"`
}

// Assembler retrieves relevant chunks and asks the generator for a grounded
// answer.
type Assembler struct {
	retriever *retriever.Retriever
	generator Generator
	logger    *zap.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(r *retriever.Retriever, g Generator, logger *zap.Logger) (*Assembler, error) {
	if r == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if g == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{retriever: r, generator: g, logger: logger}, nil
}

// Ask answers a student question from indexed course material.
//
// Retrieval scoping comes from opts. When nothing relevant is indexed, Ask
// returns a NoMaterialError without calling the generator.
func (a *Assembler) Ask(ctx context.Context, question string, opts retriever.Options) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "Assembler.Ask")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	results, err := a.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(results) == 0 {
		span.SetAttributes(attribute.Bool("empty_retrieval", true))
		span.SetStatus(codes.Ok, "no material")
		return nil, &NoMaterialError{VideoID: opts.VideoID}
	}

	prompt := buildPrompt(question, buildContextBlock(results))

	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	passages := make([]Passage, len(results))
	for i, r := range results {
		passages[i] = Passage{Text: r.Text, Metadata: r.Metadata, Distance: r.Distance}
	}

	span.SetAttributes(attribute.Int("passages_used", len(passages)))
	span.SetStatus(codes.Ok, "success")

	a.logger.Debug("answered question",
		zap.Int("passages", len(passages)),
		zap.Int("answer_chars", len(text)),
	)

	return &Answer{Answer: strings.TrimSpace(text), Passages: passages}, nil
}

// buildContextBlock renders retrieved chunks as numbered, attributed sources
// separated by rules, so the model can cite them.
func buildContextBlock(results []vectorstore.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		filename := r.Metadata[document.KeyFilename]
		if filename == "" {
			filename = "Unknown"
		}
		subject := r.Metadata[document.KeySubject]
		chapter := r.Metadata[document.KeyChapter]

		var sb strings.Builder
		fmt.Fprintf(&sb, "[Source %d: %s", i+1, filename)
		if subject != "" || chapter != "" {
			sb.WriteString(" — ")
			sb.WriteString(subject)
			if chapter != "" {
				sb.WriteString(", ")
				sb.WriteString(chapter)
			}
		}
		sb.WriteString("]\n")
		sb.WriteString(r.Text)
		parts[i] = sb.String()
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// buildPrompt lays out the system instructions, context and question.
func buildPrompt(question, contextBlock string) string {
	return fmt.Sprintf(`%s

---

## Course material (use only this to answer):

%s

---

## Student's question:

%s

---

Provide a precise, clear answer suitable for a learning portal based only on the course material above.`,
		systemPrompt, contextBlock, question)
}
