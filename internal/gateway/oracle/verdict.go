package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"tradepilot/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["decision", "confidence"],
  "properties": {
    "decision": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "reasoning": {"type": "string"},
    "reports": {"type": "object"}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func verdictSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("verdict.json", strings.NewReader(verdictSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("verdict.json")
	})
	return schema, schemaErr
}

// parseVerdict 从原始输出提取结论；兼容 final_decision/action 等别名。
func parseVerdict(raw string) (Analysis, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok || !gjson.Valid(obj) {
		return Analysis{}, fmt.Errorf("oracle: no json object in response")
	}
	parsed := gjson.Parse(obj)
	decision := firstString(parsed, "decision", "final_decision", "action", "recommendation")
	confidence := parsed.Get("confidence")
	if !confidence.Exists() {
		confidence = parsed.Get("score")
	}

	canonical := map[string]any{
		"decision":   decision,
		"confidence": confidence.Value(),
	}
	if r := firstString(parsed, "reasoning", "rationale", "summary"); r != "" {
		canonical["reasoning"] = r
	}
	if reports := parsed.Get("reports"); reports.IsObject() {
		canonical["reports"] = reports.Value()
	}
	sch, err := verdictSchema()
	if err != nil {
		return Analysis{}, fmt.Errorf("compile verdict schema: %w", err)
	}
	// 经 JSON 往返得到 schema 校验所需的通用类型
	b, _ := json.Marshal(canonical)
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return Analysis{}, err
	}
	if err := sch.Validate(doc); err != nil {
		return Analysis{}, fmt.Errorf("oracle: invalid verdict: %w", err)
	}

	norm := NormalizeDecision(decision)
	if norm == "" {
		return Analysis{}, fmt.Errorf("oracle: unknown decision %q", decision)
	}
	out := Analysis{
		Decision:   norm,
		Confidence: ClampConfidence(confidence.Float()),
		Reasoning:  firstString(parsed, "reasoning", "rationale", "summary"),
	}
	if m, ok := canonical["reports"].(map[string]any); ok {
		out.Reports = m
	}
	return out, nil
}

func firstString(parsed gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := parsed.Get(k); v.Exists() && v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
