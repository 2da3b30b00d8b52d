package service

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/codegate-dev/codegate/pkg/api"
	"github.com/codegate-dev/codegate/pkg/receipts"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// CodeInvalidRequest marks a malformed tool invocation rejected at the
// transport boundary. These requests never reach the policy core.
const CodeInvalidRequest = "INVALID_REQUEST"

const gateCheckSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["stage"],
  "properties": {
    "stage": {"enum": ["PRE_WRITE", "PRE_COMMIT", "PRE_PUSH", "CI"]}
  },
  "additionalProperties": false
}`

const mutatingToolSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["stage"],
  "properties": {
    "stage": {"enum": ["PRE_WRITE", "PRE_COMMIT", "PRE_PUSH", "CI"]},
    "dry_run": {"type": "boolean"},
    "change_id": {"type": "string"}
  },
  "additionalProperties": false
}`

var (
	compiledGateCheckSchema    = jsonschema.MustCompileString("gate_check.json", gateCheckSchema)
	compiledMutatingToolSchema = jsonschema.MustCompileString("mutating_tool.json", mutatingToolSchema)
)

// toolArgs decodes and schema-validates a tool request body. A failure
// is an INVALID_REQUEST client error, never a gate decision.
func toolArgs(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema) (map[string]any, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		api.WriteBadRequest(w, CodeInvalidRequest+": unreadable request body")
		return nil, false
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		api.WriteBadRequest(w, CodeInvalidRequest+": request body is not JSON")
		return nil, false
	}
	if err := schema.Validate(raw); err != nil {
		api.WriteBadRequest(w, CodeInvalidRequest+": "+err.Error())
		return nil, false
	}
	args, ok := raw.(map[string]any)
	if !ok {
		api.WriteBadRequest(w, CodeInvalidRequest+": request body must be an object")
		return nil, false
	}
	return args, true
}

func argStage(args map[string]any) stagepolicy.Stage {
	stage, _ := args["stage"].(string)
	return stagepolicy.Stage(stage)
}

// gateCheckResponse is the ai_gate_check contract.
type gateCheckResponse struct {
	Tool    string          `json:"tool"`
	Success bool            `json:"success"`
	Result  gateCheckResult `json:"result"`
}

type gateCheckResult struct {
	Stage      stagepolicy.Stage       `json:"stage"`
	Violations []stagepolicy.Violation `json:"violations"`
	Policy     policyRef               `json:"policy"`
	ReceiptID  string                  `json:"receipt_id,omitempty"`
}

type policyRef struct {
	Trace stagepolicy.Trace `json:"trace"`
}

func (s *Server) handleGateCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	args, ok := toolArgs(w, r, compiledGateCheckSchema)
	if !ok {
		return
	}
	stage := argStage(args)

	result, err := s.runner.Check(r.Context(), stage, receipts.SourceMCP)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, gateCheckResponse{
		Tool:    receipts.ToolAIGateCheck,
		Success: result.Decision.Allowed,
		Result: gateCheckResult{
			Stage:      stage,
			Violations: result.Decision.Violations,
			Policy:     policyRef{Trace: result.Decision.Policy.Trace},
			ReceiptID:  result.Receipt.ReceiptID,
		},
	})
}

// toolResponse is the mutating-tool contract. Executed is true only
// when the side effects actually ran; a guard failure or a dry run
// reports the identical decision with Executed false.
type toolResponse struct {
	Tool     string               `json:"tool"`
	Success  bool                 `json:"success"`
	Executed bool                 `json:"executed"`
	Code     string               `json:"code,omitempty"`
	Message  string               `json:"message,omitempty"`
	DryRun   bool                 `json:"dry_run"`
	Decision stagepolicy.Decision `json:"decision"`
}

// mutatingTool guards a side-effecting tool with the stage gate, branch
// protection and the spec-artifact checks. The decision is computed
// once; real execution and dry run see the same one.
func (s *Server) mutatingTool(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			api.WriteMethodNotAllowed(w)
			return
		}
		args, ok := toolArgs(w, r, compiledMutatingToolSchema)
		if !ok {
			return
		}
		stage := argStage(args)
		dryRun, _ := args["dry_run"].(bool)

		decision := s.runner.Decide(r.Context(), stage)
		guard := s.guard.Evaluate(stage)

		resp := toolResponse{Tool: name, DryRun: dryRun, Decision: decision}
		switch {
		case !guard.Allowed:
			resp.Code = guard.Code
			resp.Message = guard.Message
		case !decision.Allowed:
			resp.Code = decision.Violations[0].Code
			resp.Message = decision.Violations[0].Message
		case dryRun:
			resp.Success = true
		default:
			if err := s.executor.Execute(name, args); err != nil {
				s.logger.Error("tool execution failed", "tool", name, "error", err)
				api.WriteInternal(w, err)
				return
			}
			resp.Success = true
			resp.Executed = true
		}

		s.logger.Info("tool call",
			"tool", name,
			"stage", stage,
			"dry_run", dryRun,
			"executed", resp.Executed,
			"code", resp.Code)
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
