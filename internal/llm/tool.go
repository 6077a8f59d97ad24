package llm

import (
	"encoding/json"

	"github.com/forgehook/forgehostd/pkg/model"
)

// schemaTool adapts a pkg/model.Tool (the Tool Schema Builder's output: a
// name, description, and a parameters map) to the provider-facing Tool
// interface the kept Anthropic/OpenAI/Ollama adapters expect.
type schemaTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (t *schemaTool) Name() string               { return t.name }
func (t *schemaTool) Description() string         { return t.description }
func (t *schemaTool) Schema() json.RawMessage     { return t.schema }

// ToolsFromModel converts the Tool Schema Builder's tools into the
// provider-facing Tool slice a Provider.Complete call expects.
func ToolsFromModel(tools []model.Tool) ([]Tool, error) {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		out = append(out, &schemaTool{name: t.Name, description: t.Description, schema: raw})
	}
	return out, nil
}
