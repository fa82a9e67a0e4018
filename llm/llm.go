// Package llm wires the orchestrator's two model-backed decisions —
// SuperAgent triage and Planner plan generation — to a single Anthropic
// Claude client, validating each structured response against a JSON Schema
// before handing it back to the caller.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stockbuddy/orchestrator/planner"
	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/triager"
)

// errMalformedResponse wraps a model response that parsed or validated
// incorrectly (non-JSON text, or JSON failing the response schema) as
// distinct from a transport-level failure reaching the model at all. Triage
// treats this case specially per the triager's never-crash contract.
var errMalformedResponse = errors.New("llm: malformed model response")

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake without a live API key. Satisfied by
// *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Model implements both planner.ModelPlanner and triager.Model over a
// single Anthropic client, using distinct system prompts and JSON Schemas
// for each decision.
type Model struct {
	client       MessagesClient
	modelID      string
	maxTokens    int64
	planSchema   *jsonschema.Schema
	triageSchema *jsonschema.Schema
	cards        []remoteagent.AgentCard
	now          func() time.Time
}

// SetAgentCards injects the registry's capability cards into both prompts so
// the model routes against the actual agent set instead of guessing names.
func (m *Model) SetAgentCards(cards []remoteagent.AgentCard) {
	m.cards = cards
}

// New constructs a Model. modelID should be a value from the
// anthropic-sdk-go model constants (e.g. string(sdk.ModelClaudeSonnet4_5_20250929)).
func New(client MessagesClient, modelID string, maxTokens int64) (*Model, error) {
	planSchema, err := compileSchema(planResponseSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("llm: compile plan schema: %w", err)
	}
	triageSchema, err := compileSchema(triageResponseSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("llm: compile triage schema: %w", err)
	}
	return &Model{client: client, modelID: modelID, maxTokens: maxTokens, planSchema: planSchema, triageSchema: triageSchema, now: time.Now}, nil
}

// NewFromAPIKey constructs a Model using the default Anthropic HTTP client,
// authenticated with apiKey.
func NewFromAPIKey(apiKey, modelID string, maxTokens int64) (*Model, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, modelID, maxTokens)
}

func compileSchema(raw string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
	if err != nil {
		return nil, err
	}
	const resource = "mem://schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, err
	}
	return c.Compile(resource)
}

// Plan implements planner.ModelPlanner.
func (m *Model) Plan(ctx context.Context, query string, recommendedAgent string, history []string) (planner.RawPlan, error) {
	prompt := planPrompt(query, recommendedAgent, history, m.now())
	raw, err := m.complete(ctx, plannerSystemPrompt+capabilitiesPrompt(m.cards), prompt, m.planSchema)
	if err != nil {
		return planner.RawPlan{}, err
	}

	var decoded planResponseWire
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return planner.RawPlan{}, fmt.Errorf("llm: decode plan response: %w", err)
	}
	return decoded.toRawPlan(), nil
}

// Triage implements triager.Model. Per the triager's never-crash contract,
// a malformed model response (non-JSON, or JSON failing the response
// schema) never surfaces as an error: it degrades to a direct ANSWER
// carrying a diagnostic message, so one bad completion fails the single
// query rather than the whole turn. A transport-level failure reaching the
// model at all is still returned as an error.
func (m *Model) Triage(ctx context.Context, query string) (triager.Outcome, error) {
	raw, err := m.complete(ctx, triagerSystemPrompt+capabilitiesPrompt(m.cards), query, m.triageSchema)
	if err != nil {
		if errors.Is(err, errMalformedResponse) {
			return triager.Outcome{
				Decision:      triager.DecisionAnswer,
				AnswerContent: fmt.Sprintf("I had trouble understanding that request (%v). Could you rephrase it?", err),
			}, nil
		}
		return triager.Outcome{}, err
	}

	var decoded triageResponseWire
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return triager.Outcome{
			Decision:      triager.DecisionAnswer,
			AnswerContent: fmt.Sprintf("I had trouble understanding that request (%v). Could you rephrase it?", err),
		}, nil
	}
	return decoded.toOutcome(), nil
}

func (m *Model) complete(ctx context.Context, system, user string, schema *jsonschema.Schema) (json.RawMessage, error) {
	resp, err := m.client.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(m.modelID),
		MaxTokens: m.maxTokens,
		System: []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: model call failed: %w", err)
	}

	text := extractText(resp)
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("%w: model produced non-JSON response: %v", errMalformedResponse, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: model response failed schema validation: %v", errMalformedResponse, err)
	}
	return json.RawMessage(text), nil
}

func extractText(msg *sdk.Message) string {
	var buf bytes.Buffer
	for _, block := range msg.Content {
		if block.Type == "text" {
			buf.WriteString(block.Text)
		}
	}
	return buf.String()
}
