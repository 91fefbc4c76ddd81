package llms

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
)

// Tool is a function the model may call during response generation.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema for the tool's argument object.
	Parameters *jsonschema.Schema

	execute func(arguments string) (string, error)
}

// NewTool creates a tool whose parameter schema is reflected from the
// parameter struct type. Arguments are unmarshalled into a fresh value of
// that type before the handler runs.
func NewTool[T any](name, description string, handler func(parameters T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var parameters T
	schema := reflector.Reflect(parameters)

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		execute: func(arguments string) (string, error) {
			var parsed T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
					return "", fmt.Errorf("failed to parse arguments for tool %q: %w", name, err)
				}
			}
			return handler(parsed)
		},
	}
}

// Execute runs the tool with raw JSON arguments.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no handler", t.Name)
	}
	return t.execute(arguments)
}

// CloneTools deep-copies tool definitions so adapters can mutate schema
// metadata without aliasing the caller's slice.
func CloneTools(tools []Tool) []Tool {
	if len(tools) == 0 {
		return nil
	}

	cloned := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		clone := Tool{
			Name:        tool.Name,
			Description: tool.Description,
			execute:     tool.execute,
		}
		if tool.Parameters != nil {
			schema := &jsonschema.Schema{}
			if err := copier.CopyWithOption(schema, tool.Parameters, copier.Option{DeepCopy: true}); err == nil {
				clone.Parameters = schema
			} else {
				clone.Parameters = tool.Parameters
			}
		}
		cloned = append(cloned, clone)
	}
	return cloned
}
