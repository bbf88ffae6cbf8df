package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

// execute runs req as the CLI caller and prints the result as indented JSON.
func (a *app) execute(cmd *cobra.Command, req application.Request) error {
	result, err := a.engine.Execute(cmd.Context(), a.caller(), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd, result)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseValue reads raw as JSON, falling back to the literal string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func parseMetadata(pairs map[string]string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		out[k] = parseValue(v)
	}
	return out
}

func parseObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func dimensionIDs(raw []string) []domain.DimensionID {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.DimensionID, 0, len(raw))
	for _, d := range raw {
		out = append(out, domain.DimensionID(strings.TrimSpace(d)))
	}
	return out
}

func sessionIDs(raw []string) []domain.SessionID {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.SessionID, 0, len(raw))
	for _, id := range raw {
		out = append(out, domain.SessionID(strings.TrimSpace(id)))
	}
	return out
}
